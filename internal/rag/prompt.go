package rag

import (
	"fmt"
	"strings"

	"github.com/xxxsen/paperqa/internal/model"
)

const (
	// FallbackAnswer is returned verbatim when retrieval finds no relevant passage.
	FallbackAnswer = "The uploaded research paper does not contain this information."
	// FallbackPairAnswer is the two-paper counterpart of FallbackAnswer.
	FallbackPairAnswer = "The uploaded papers do not contain this information."
	// NotMentioned fills the side of a comparison that has no supporting passage.
	NotMentioned = "Not mentioned in this paper."

	noPassages = "(no relevant passages were found in this paper)"
)

var aspectQueries = map[model.Aspect]string{
	model.AspectMethodology: "What methodology, approach, or method does this paper use?",
	model.AspectDataset:     "What dataset or data does this paper use?",
	model.AspectResults:     "What are the main results or findings of this paper?",
	model.AspectLimitations: "What are the limitations of this paper?",
}

// AspectQuery returns the retrieval question used for an aspect.
func AspectQuery(a model.Aspect) string {
	return aspectQueries[a]
}

func systemPrompt(level model.ExplanationLevel, pair bool) string {
	var sb strings.Builder
	sb.WriteString("You are an expert academic researcher. Answer questions based on the provided context from the research paper(s).\n\n")
	sb.WriteString("Guidelines:\n")
	sb.WriteString("- Answer using only information from the provided context. You may summarize across sections (Abstract, Methods, Results, etc.).\n")
	sb.WriteString("- You may combine facts stated in several passages, but stay grounded in the context.\n")
	sb.WriteString("- If the context does not contain the answer, say: \"This information is not mentioned in the provided context.\"\n")
	sb.WriteString("- Do not use external knowledge beyond what is in the context.\n")
	sb.WriteString("- Maintain an academic and objective tone.")
	if pair {
		sb.WriteString("\n- Clearly distinguish between Paper 1 and Paper 2 when comparing.")
	}
	if level == model.ExplanationSimple {
		sb.WriteString("\n- Explain concepts in simple, accessible language suitable for a general audience.")
	} else {
		sb.WriteString("\n- Use technical terminology and maintain academic rigor in your explanations.")
	}
	return sb.String()
}

func writeContext(sb *strings.Builder, chunks []model.ScoredChunk) {
	if len(chunks) == 0 {
		sb.WriteString(noPassages)
		sb.WriteString("\n")
		return
	}
	for i, sc := range chunks {
		fmt.Fprintf(sb, "[%d] (page %d", i+1, sc.Chunk.Page)
		if sc.Chunk.Section != "" {
			fmt.Fprintf(sb, ", %s", sc.Chunk.Section)
		}
		sb.WriteString(")\n")
		sb.WriteString(strings.TrimSpace(sc.Chunk.Text))
		sb.WriteString("\n\n")
	}
}

func buildAnswerPrompt(question string, result *model.RetrievalResult, level model.ExplanationLevel) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt(level, false))
	sb.WriteString("\n\nContext from the research paper:\n")
	writeContext(&sb, result.Chunks)
	fmt.Fprintf(&sb, "\nQuestion: %s\n\nAnswer (based ONLY on the context provided):", strings.TrimSpace(question))
	return sb.String()
}

func buildPairPrompt(question string, first, second *model.RetrievalResult, level model.ExplanationLevel) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt(level, true))
	sb.WriteString("\n\nContext from Paper 1:\n")
	writeContext(&sb, first.Chunks)
	sb.WriteString("\nContext from Paper 2:\n")
	writeContext(&sb, second.Chunks)
	fmt.Fprintf(&sb, "\nQuestion: %s\n\nAnswer (based ONLY on the context provided):", strings.TrimSpace(question))
	return sb.String()
}

func buildAspectPrompt(aspect model.Aspect, paper1, paper2 PaperRef, first, second *model.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("You are an expert academic researcher comparing two research papers based ONLY on the provided context. ")
	sb.WriteString("Do not use any external knowledge. Maintain an academic and objective tone.\n\n")
	fmt.Fprintf(&sb, "Aspect: %s\nFocus: %s\n\n", aspect, AspectQuery(aspect))
	fmt.Fprintf(&sb, "Context from Paper 1 (%s):\n", paper1.label())
	writeContext(&sb, first.Chunks)
	fmt.Fprintf(&sb, "\nContext from Paper 2 (%s):\n", paper2.label())
	writeContext(&sb, second.Chunks)
	sb.WriteString("\nRespond with exactly these three sections, each label at the start of a line:\n")
	fmt.Fprintf(&sb, "PAPER 1: what Paper 1 states about its %s. If its context has no relevant passage, write \"%s\"\n", aspect, NotMentioned)
	fmt.Fprintf(&sb, "PAPER 2: what Paper 2 states about its %s. If its context has no relevant passage, write \"%s\"\n", aspect, NotMentioned)
	sb.WriteString("DIFFERENCES: the key differences or similarities. If only one paper covers this aspect, say so.\n")
	return sb.String()
}
