package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr       string
	RuntimeLib       string
	ModelDir         string
	OutputDir        string
	Threads          int
	InferenceTimeout time.Duration
}

func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:       getenv("LISTEN_ADDR", ":1323"),
		RuntimeLib:       os.Getenv("ONNXRUNTIME_LIB"),
		ModelDir:         getenv("MODEL_DIR", "models"),
		OutputDir:        getenv("OUTPUT_DIR", "outputs"),
		InferenceTimeout: 30 * time.Second,
	}
	if v := os.Getenv("ONNX_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Threads = n
		}
	}
	if v := os.Getenv("INFERENCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.InferenceTimeout = d
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
