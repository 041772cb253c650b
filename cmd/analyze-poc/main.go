package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stylelab/telegram-stylist-bot/internal/llm"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintf(os.Stderr, "Usage: %s <front.jpg> <left.jpg> <right.jpg>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY - Required\n")
		os.Exit(1)
	}

	images := make([][]byte, 0, llm.CaptureCount)
	for _, path := range os.Args[1:4] {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read image %s: %v\n", path, err)
			os.Exit(1)
		}
		images = append(images, data)
	}

	ctx := context.Background()

	analyzer, err := llm.NewGeminiAnalyzer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating analyzer: %v\n", err)
		os.Exit(1)
	}

	result, err := analyzer.AnalyzeFace(ctx, images)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error analyzing face: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Face shape: %s\n\n", result.Analysis.FaceShape)
	for i, s := range result.Analysis.Suggestions {
		fmt.Printf("%d. %s\n", i+1, s.Name)
		fmt.Printf("   %s\n", s.Description)
		fmt.Printf("   %s\n\n", s.Reasoning)
	}

	fmt.Printf("Tokens: %d in / %d out / %d total\n",
		result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.TotalTokens)
	fmt.Printf("Cost:   $%.6f\n", result.Usage.CostUSD)
}
