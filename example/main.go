package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/user0608/subjectcrop"
)

func main() {

	registry := subjectcrop.NewRegistry(subjectcrop.ModelConfig{
		RuntimeLib: os.Getenv("ONNXRUNTIME_LIB"),
		ModelDir:   "models",
	}, nil)
	defer registry.Close()

	engine := subjectcrop.NewEngine(registry, nil)

	in, err := os.ReadFile("input.jpg")
	if err != nil {
		slog.Error("leer input", "err", err)
		return
	}

	start := time.Now()
	result, err := engine.Crop(context.Background(), in, subjectcrop.Request{
		Method:      subjectcrop.MethodYOLO,
		TargetLabel: "person",
		Padding:     10,
		Aspect:      subjectcrop.AspectCustom,
		AspectRatio: "4:5",
		Visualize:   true,
	})
	if err != nil {
		slog.Error("procesar", "err", err)
		return
	}
	fmt.Println("duration (s):", time.Since(start).Seconds())
	fmt.Print(result.Summary)

	if err := os.WriteFile("output_crop.jpg", result.Crop, 0o644); err != nil {
		slog.Error("guardar out", "err", err)
		return
	}
	if len(result.Visualization) > 0 {
		if err := os.WriteFile("output_vis.jpg", result.Visualization, 0o644); err != nil {
			slog.Error("guardar vis", "err", err)
			return
		}
	}
}
