package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"math/rand/v2"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/config"
	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/imaging"
	"github.com/tatianab/photo-game/internal/llm"
)

const sceneObjects = 6

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// The pipeline and the reviewer share one backend.
	gen, err := llm.New(ctx, cfg.LLM())
	if err != nil {
		log.Fatalf("Failed to create model backend: %v", err)
	}
	eng := engine.NewEngine(gen, logger, engine.Options{MaxRepairAttempts: cfg.MaxRepairAttempts, Clearance: 20})
	defer eng.Close()

	// 1. Draw a synthetic photo: a floor with a few blocky objects.
	fmt.Println("--- Step 1: Drawing a synthetic scene ---")
	img, err := syntheticScene()
	if err != nil {
		log.Fatalf("Failed to draw scene: %v", err)
	}
	fmt.Printf("Scene: %dx%d, %d bytes as JPEG\n\n", img.Width, img.Height, len(img.Data))

	// 2. Run the pipeline, printing each stage.
	fmt.Println("--- Step 2: Generating the game ---")
	run, err := eng.Run(ctx, img, "synthetic.png", func(u engine.Update) {
		fmt.Printf("[%s]\n", u.Stage)
		if u.Stage == engine.StageAnalyzed {
			fmt.Printf("%s\n\n", u.Analysis)
		}
	})
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	fmt.Println()
	fmt.Println(engine.Summary(run))
	for _, issue := range run.Issues.Positions {
		fmt.Printf("Position: %s\n", issue)
	}

	dir, err := run.Save(os.TempDir())
	if err != nil {
		log.Fatalf("Failed to save run: %v", err)
	}
	fmt.Printf("Saved to %s\n\n", dir)

	// 3. Ask the model to review the script as a player would.
	fmt.Println("--- Step 3: Reviewing the game ---")
	fmt.Println(review(ctx, gen, run.Spec.Title, run.JS))
}

func syntheticScene() (*imaging.EncodedImage, error) {
	rgba := image.NewRGBA(image.Rect(0, 0, 1600, 1200))
	draw.Draw(rgba, rgba.Bounds(), &image.Uniform{color.RGBA{R: 196, G: 164, B: 132, A: 255}}, image.Point{}, draw.Src)
	for i := 0; i < sceneObjects; i++ {
		x, y := rand.IntN(1300), rand.IntN(900)
		w, h := 100+rand.IntN(200), 100+rand.IntN(200)
		c := color.RGBA{R: uint8(rand.IntN(256)), G: uint8(rand.IntN(256)), B: uint8(rand.IntN(256)), A: 255}
		draw.Draw(rgba, image.Rect(x, y, x+w, y+h), &image.Uniform{c}, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, err
	}
	return imaging.Encode(&buf)
}

func review(ctx context.Context, gen llm.Generator, title, js string) string {
	prompt := fmt.Sprintf(`You are about to play a browser game called %q.
Here is its JavaScript:

%s

Would it start and respond to the arrow keys? Answer in three short lines: verdict, biggest risk, one fix.`, title, js)

	text, err := gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: 300})
	if err != nil {
		return "review failed: " + err.Error()
	}
	return strings.TrimSpace(text)
}
