package openai

import "finsight-backend/internal/narrative"

const basePrompt = "You are a financial analyst. You receive a JSON object of " +
	"computed findings. Write a short commentary (2-4 sentences) for a business " +
	"reader. Only restate and contextualize the numbers given; never invent " +
	"figures that are not in the input."

func systemPrompt(stage string) string {
	switch stage {
	case narrative.StageAnalysis:
		return basePrompt + " Focus on the revenue, profit, and growth metrics."
	case narrative.StageRisk:
		return basePrompt + " Focus on the risk levels and what drives them."
	case narrative.StageStrategy:
		return basePrompt + " Focus on market position and the recommended actions."
	case narrative.StageConsensus:
		return basePrompt + " Summarize the overall picture across all findings."
	default:
		return basePrompt
	}
}
