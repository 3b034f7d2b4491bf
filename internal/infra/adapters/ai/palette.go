package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
)

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{6})$`)

func paletteInstruction(count, colors int) string {
	return fmt.Sprintf(
		"You design color palettes. Reply with JSON only, no prose: "+
			`{"palettes":[{"name":"...","colors":["#RRGGBB",...]}]}`+
			". Return exactly %d palettes of exactly %d colors each.", count, colors)
}

type paletteEnvelope struct {
	Palettes []struct {
		Name   string   `json:"name"`
		Colors []string `json:"colors"`
	} `json:"palettes"`
}

// parsePalettes reads the model reply, tolerating markdown code fences.
// Colors are normalized to upper case #RRGGBB; invalid ones are dropped.
func parsePalettes(reply string, want int) ([]model.Palette, error) {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var env paletteEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, fmt.Errorf("%w: palette reply is not json: %v", domain.ErrOperationFailed, err)
	}

	out := make([]model.Palette, 0, len(env.Palettes))
	for i, p := range env.Palettes {
		colors := make([]string, 0, len(p.Colors))
		for _, c := range p.Colors {
			if m := hexColor.FindStringSubmatch(strings.TrimSpace(c)); m != nil {
				colors = append(colors, "#"+strings.ToUpper(m[1]))
			}
		}
		if len(colors) == 0 {
			continue
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = fmt.Sprintf("Palette %d", i+1)
		}
		out = append(out, model.Palette{Name: name, Colors: colors})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: palette reply had no usable colors", domain.ErrOperationFailed)
	}
	if want > 0 && len(out) > want {
		out = out[:want]
	}
	return out, nil
}
