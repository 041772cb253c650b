package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stylelab/telegram-stylist-bot/internal/llm"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <face.jpg> <style name> [style description]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY - Required\n")
		os.Exit(1)
	}

	imagePath := os.Args[1]
	styleName := os.Args[2]
	styleDescription := ""
	if len(os.Args) >= 4 {
		styleDescription = os.Args[3]
	}

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}

	renderer := llm.NewGeminiRenderer(llm.RendererOpts{APIKey: os.Getenv("GEMINI_API_KEY")})

	result, err := renderer.RenderHairstyle(context.Background(), imageData, styleName, styleDescription)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering hairstyle: %v\n", err)
		os.Exit(1)
	}

	outPath := "render-output.png"
	if err := os.WriteFile(outPath, result.ImageData, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d bytes (%s) to %s\n", len(result.ImageData), result.MIMEType, outPath)
	fmt.Printf("Tokens: %d in / %d out / %d total\n",
		result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.TotalTokens)
	fmt.Printf("Cost:   $%.6f\n", result.Usage.CostUSD)
}
