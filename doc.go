// Package subjectcrop turns an arbitrary input image into a cropped
// output by locating a subject region and reshaping it to the caller's
// padding and aspect-ratio constraints.
//
// Eight interchangeable detection methods sit behind one contract: four
// classical computer-vision heuristics (contour, saliency, edge, grabcut)
// that emit a single synthetic candidate, and four neural detectors
// (yolo, detr, rt-detr, rf-detr) that emit zero or more scored, labeled
// candidates from pre-trained ONNX models. A deterministic geometry stage
// then pads the chosen box, corrects its aspect ratio and clamps it to
// the image before cropping.
//
// Basic usage:
//
//	registry := subjectcrop.NewRegistry(subjectcrop.ModelConfig{ModelDir: "models"}, nil)
//	defer registry.Close()
//
//	engine := subjectcrop.NewEngine(registry, nil)
//	data, _ := os.ReadFile("living_room.jpg")
//
//	result, err := engine.Crop(context.Background(), data, subjectcrop.Request{
//		Method:      subjectcrop.MethodYOLO,
//		TargetLabel: "couch",
//		Padding:     10,
//		Aspect:      subjectcrop.AspectCustom,
//		AspectRatio: "16:9",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = os.WriteFile("couch.jpg", result.Crop, 0o644)
//
// The returned Result carries the full candidate list, so an interactive
// caller can re-select a different candidate by passing the list back
// with a SelectedIndex instead of repeating inference. BatchCrop crops
// every candidate of a neural run into independently named artifacts.
package subjectcrop
