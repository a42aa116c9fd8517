package prompt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"text/template"
)

// Renderer wraps a parsed text/template. Rendering is pure: the same data
// yields byte-identical output.
type Renderer struct {
	tmpl   *template.Template
	digest string
}

// funcMap exposes the formatting helpers templates use. Pointer-valued parsed
// fields render as NOT SPECIFIED when absent.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"money": func(v float64) string {
			return fmt.Sprintf("$%.2f", v)
		},
		"moneyComma": func(v float64) string {
			return "$" + comma(fmt.Sprintf("%.2f", v))
		},
		"moneyPtr": func(p *float64) string {
			if p == nil {
				return "NOT SPECIFIED"
			}
			return fmt.Sprintf("$%.2f", *p)
		},
		"pctPtr": func(p *float64) string {
			if p == nil {
				return "NOT SPECIFIED"
			}
			return fmt.Sprintf("%.0f%%", *p*100)
		},
		"numPtr": func(p *float64) string {
			if p == nil {
				return "NOT SPECIFIED"
			}
			return fmt.Sprintf("%.2f", *p)
		},
		"orNA": func(s string) string {
			if strings.TrimSpace(s) == "" {
				return "NOT SPECIFIED"
			}
			return s
		},
		"join": strings.Join,
		"pct": func(v float64) string {
			return fmt.Sprintf("%.0f%%", v*100)
		},
		"truncate": func(n int, s string) string {
			if len(s) <= n {
				return s
			}
			return s[:n]
		},
	}
}

// comma inserts thousands separators into the integer part of a fixed-point
// decimal string.
func comma(s string) string {
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return intPart + frac
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String() + frac
}

// NewRenderer parses template text.
func NewRenderer(name, text string) (*Renderer, error) {
	tmpl, err := template.New(name).Funcs(funcMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("prompt: parse template %q: %w", name, err)
	}
	sum := sha256.Sum256([]byte(text))
	return &Renderer{
		tmpl:   tmpl,
		digest: hex.EncodeToString(sum[:]),
	}, nil
}

// Render executes the template.
func (r *Renderer) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt: execute template: %w", err)
	}
	return buf.String(), nil
}

// Digest returns the sha256 of the template source.
func (r *Renderer) Digest() string {
	return r.digest
}
