// Package shops asks a generative model for electrical and electronics shops
// near a place and extracts the structured answer.
package shops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
)

const DefaultModel = "gemini-2.0-flash"

const prompt = "As an expert in location-based services and geospatial data, your task is to provide a precise and accurate list of nearby electrical and electronics shops " +
	"for the specified location. Please return the response in a well-structured JSON format. " +
	"Each entry should include the shop's name, latitude, longitude, and a direct Google Maps link for easy navigation. " +
	"Ensure the JSON output follows this structure: [{'name': 'Shop 1', 'latitude': lat, 'longitude': lon, 'link': 'https://www.google.com/maps/...'}, ...]. " +
	"Please make sure the response is clean and contains only the JSON data, without any additional explanations or text. Location: "

var (
	ErrNoLocation = errors.New("location not provided")
	ErrGeneration = errors.New("model request failed")
	ErrNoJSON     = errors.New("no valid JSON found in the response")
	ErrProcessing = errors.New("error processing data")
)

var jsonBlock = regexp.MustCompile(`(?s)\{.*\}|\[.*\]`)

// Shop is one suggested store.
type Shop struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Link      string  `json:"link"`
}

// Generator turns a prompt into model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Finder struct {
	gen Generator
}

func NewFinder(gen Generator) *Finder {
	return &Finder{gen: gen}
}

// Find returns shops near location as reported by the model.
func (f *Finder) Find(ctx context.Context, location string) ([]Shop, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrNoLocation
	}

	text, err := f.gen.Generate(ctx, prompt+location)
	if err != nil {
		logger.GetLogger().Errorw("Error calling Gemini API", "location", location, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrGeneration
	}

	return ExtractShops(text)
}

// ExtractShops parses the first JSON array or object in text. A lone object
// is treated as a single shop.
func ExtractShops(text string) ([]Shop, error) {
	block := jsonBlock.FindString(text)
	if block == "" || !json.Valid([]byte(block)) {
		return nil, ErrNoJSON
	}

	var shops []Shop
	if strings.HasPrefix(block, "{") {
		var one Shop
		if err := json.Unmarshal([]byte(block), &one); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
		}
		shops = []Shop{one}
	} else if err := json.Unmarshal([]byte(block), &shops); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	for i, s := range shops {
		if s.Name == "" || s.Link == "" {
			return nil, fmt.Errorf("%w: entry %d lacks name or link", ErrProcessing, i)
		}
	}
	return shops, nil
}
