package main

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/user0608/goones/answer"
	"github.com/user0608/goones/errs"
	"github.com/user0608/subjectcrop"
)

var acceptedTypes = []string{"image/png", "image/jpeg", "image/webp"}

type CropHandler struct {
	Engine    *subjectcrop.Engine
	OutputDir string
}

type cropResponse struct {
	CroppedURL       string                  `json:"cropped_url"`
	VisualizationURL string                  `json:"visualization_url,omitempty"`
	Bounds           [4]int                  `json:"bounds"`
	Detections       []subjectcrop.Detection `json:"detections"`
	SelectedIndex    int                     `json:"selected_index"`
	RatioDeviation   bool                    `json:"ratio_deviation"`
	Info             string                  `json:"info"`
}

type batchResponse struct {
	Files []string `json:"files"`
	Count int      `json:"count"`
}

func (h *CropHandler) Crop(c echo.Context) error {
	content, err := readUpload(c)
	if err != nil {
		return answer.Err(c, err)
	}

	req, err := parseRequest(c)
	if err != nil {
		return answer.Err(c, err)
	}
	req.Visualize = true

	result, err := h.Engine.Crop(c.Request().Context(), content, req)
	if err != nil {
		return answer.Err(c, kindError(err))
	}

	id := uuid.NewString()
	cropName := id + "_cropped.jpg"
	if err := os.WriteFile(filepath.Join(h.OutputDir, cropName), result.Crop, 0o644); err != nil {
		return answer.Err(c, errs.InternalErrorDirect("no se pudo guardar el recorte"))
	}
	resp := cropResponse{
		CroppedURL:     "/outputs/" + cropName,
		Bounds:         [4]int{result.Box.Min.X, result.Box.Min.Y, result.Box.Max.X, result.Box.Max.Y},
		Detections:     result.Detections,
		SelectedIndex:  result.SelectedIndex,
		RatioDeviation: result.RatioDeviation,
		Info:           result.Summary,
	}
	if len(result.Visualization) > 0 {
		visName := id + "_vis.jpg"
		if err := os.WriteFile(filepath.Join(h.OutputDir, visName), result.Visualization, 0o644); err != nil {
			return answer.Err(c, errs.InternalErrorDirect("no se pudo guardar la visualización"))
		}
		resp.VisualizationURL = "/outputs/" + visName
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *CropHandler) BatchCrop(c echo.Context) error {
	content, err := readUpload(c)
	if err != nil {
		return answer.Err(c, err)
	}

	req, err := parseRequest(c)
	if err != nil {
		return answer.Err(c, err)
	}

	crops, err := h.Engine.BatchCrop(c.Request().Context(), content, uuid.NewString(), req)
	if err != nil {
		return answer.Err(c, kindError(err))
	}
	paths, err := subjectcrop.WriteCrops(h.OutputDir, crops)
	if err != nil {
		return answer.Err(c, errs.InternalErrorDirect("no se pudieron guardar los recortes"))
	}
	files := make([]string, len(paths))
	for i, p := range paths {
		files[i] = "/outputs/" + filepath.Base(p)
	}
	return c.JSON(http.StatusOK, batchResponse{Files: files, Count: len(files)})
}

// readUpload pulls the image out of the multipart form, falling back to
// a raw body so curl-style uploads keep working.
func readUpload(c echo.Context) ([]byte, error) {
	var content []byte
	if fh, err := c.FormFile("file"); err == nil {
		src, err := fh.Open()
		if err != nil {
			return nil, errs.BadRequestDirect("no se pudo leer el archivo enviado")
		}
		defer src.Close()
		content, err = io.ReadAll(src)
		if err != nil {
			return nil, errs.BadRequestDirect("la imagen enviada está incompleta o dañada")
		}
	} else {
		var rerr error
		content, rerr = io.ReadAll(c.Request().Body)
		if rerr != nil {
			return nil, errs.InternalErrorDirect("no se pudo leer el cuerpo de la solicitud")
		}
	}
	if len(content) == 0 {
		return nil, errs.BadRequestDirect("la imagen enviada en la solicitud está vacía")
	}
	mime := mimetype.Detect(content)
	if !slices.Contains(acceptedTypes, mime.String()) {
		return nil, errs.BadRequestDirect("solo se aceptan imágenes en formato PNG, JPG o WebP")
	}
	return content, nil
}

func parseRequest(c echo.Context) (subjectcrop.Request, error) {
	req := subjectcrop.Request{
		TargetLabel: strings.TrimSpace(c.FormValue("object")),
		AspectRatio: strings.TrimSpace(c.FormValue("aspect_ratio")),
	}

	method := c.FormValue("method")
	if method == "" {
		method = string(subjectcrop.MethodContour)
	}
	m, err := subjectcrop.ParseMethod(method)
	if err != nil {
		return req, errs.BadRequestDirect(err.Error())
	}
	req.Method = m

	switch c.FormValue("aspect_mode") {
	case "", "none":
		req.Aspect = subjectcrop.AspectNone
	case "original":
		req.Aspect = subjectcrop.AspectOriginal
	case "custom":
		req.Aspect = subjectcrop.AspectCustom
	default:
		return req, errs.BadRequestDirect("aspect_mode debe ser none, original o custom")
	}

	if v := c.FormValue("confidence"); v != "" {
		req.Confidence, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errs.BadRequestDirect("confidence inválido")
		}
	}
	if v := c.FormValue("padding"); v != "" {
		req.Padding, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errs.BadRequestDirect("padding inválido")
		}
	}
	if v := c.FormValue("threshold"); v != "" {
		req.Threshold, err = strconv.Atoi(v)
		if err != nil {
			return req, errs.BadRequestDirect("threshold inválido")
		}
	}
	if v := c.FormValue("selected_index"); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil {
			return req, errs.BadRequestDirect("selected_index inválido")
		}
		req.SelectedIndex = &idx
	}
	if v := c.FormValue("detections"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Detections); err != nil {
			return req, errs.BadRequestDirect("detections no es una lista JSON válida")
		}
	}
	return req, nil
}

// kindError translates core error kinds into goones HTTP answers.
func kindError(err error) error {
	switch subjectcrop.KindOf(err) {
	case subjectcrop.KindInvalidImage,
		subjectcrop.KindInvalidConfiguration,
		subjectcrop.KindNoDetection,
		subjectcrop.KindLabelNotFound:
		return errs.BadRequestDirect(err.Error())
	default:
		return errs.InternalErrorDirect(err.Error())
	}
}
