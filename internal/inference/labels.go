// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inference

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultInputSize is the square input edge of the bundled classifier.
const DefaultInputSize = 224

// defaultLabels is index-aligned with the bundled classifier's output.
var defaultLabels = []string{
	"Algal Leaf Spot (Jackfruit)",
	"Anthracnose (Mango)",
	"Aphids (Cotton)",
	"Apple scab (Apple)",
	"Bacterial Blight (Cotton)",
	"Bacterial Canker (Mango)",
	"Bacterial Leaf Spot (Pumpkin)",
	"Bacterial spot (Peach)",
	"Bacterial spot (Pepper, bell)",
	"Bacterial spot (Tomato)",
	"BacterialBlights (Sugarcane)",
	"Black Rot (Cauliflower)",
	"Black Spot (Jackfruit)",
	"Black rot (Apple)",
	"Black rot (Grape)",
	"BrownSpot (Rice)",
	"Cedar apple rust (Apple)",
	"Cercospora leaf spot Gray leaf spot (Corn (maize))",
	"Common rust (Corn (maize))",
	"Cutting Weevil (Mango)",
	"Die Back (Mango)",
	"Downy Mildew (Pumpkin)",
	"Early blight (Potato)",
	"Early blight (Tomato)",
	"Esca (Black Measles) (Grape)",
	"Gall Midge (Mango)",
	"Haunglongbing (Citrus greening) (Orange)",
	"Healthy (Cauliflower)",
	"Healthy (Cotton)",
	"Healthy (Jackfruit)",
	"Healthy (Mango)",
	"Healthy (Rice)",
	"Healthy (Sugarcane)",
	"Healthy Leaf (Pumpkin)",
	"Hispa (Rice)",
	"Late blight (Potato)",
	"Late blight (Tomato)",
	"Leaf Mold (Tomato)",
	"Leaf blight (Isariopsis Leaf Spot) (Grape)",
	"Leaf scorch (Strawberry)",
	"LeafBlast (Rice)",
	"Mosaic (Sugarcane)",
	"Mosaic Disease (Pumpkin)",
	"Northern Leaf Blight (Corn (maize))",
	"Powdery Mildew (Cotton)",
	"Powdery Mildew (Mango)",
	"Powdery Mildew (Pumpkin)",
	"Powdery mildew (Cherry (including sour))",
	"RedRot (Sugarcane)",
	"Rust (Sugarcane)",
	"Septoria leaf spot (Tomato)",
	"Sooty Mould (Mango)",
	"Spider mites Two-spotted spider mite (Tomato)",
	"Target Spot (Tomato)",
	"Target spot (Cotton)",
	"Tomato Yellow Leaf Curl Virus (Tomato)",
	"Tomato mosaic virus (Tomato)",
	"Unknown Disease",
	"Yellow (Sugarcane)",
	"healthy (Apple)",
	"healthy (Blueberry)",
	"healthy (Cherry (including sour))",
	"healthy (Corn (maize))",
	"healthy (Grape)",
	"healthy (Peach)",
	"healthy (Pepper, bell)",
	"healthy (Potato)",
	"healthy (Raspberry)",
	"healthy (Soybean)",
	"healthy (Strawberry)",
	"healthy (Tomato)",
}

// DefaultLabels returns a copy of the bundled label table.
func DefaultLabels() []string {
	out := make([]string, len(defaultLabels))
	copy(out, defaultLabels)
	return out
}

// LoadLabels reads a label table with one label per line. Blank lines
// are skipped; order is preserved.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening labels %s: %w", path, err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading labels %s: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}
