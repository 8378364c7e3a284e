// Package interpolate expands the small escape language string options
// may use: %N for a run's source name, %i for its short pipeline id, and
// the usual strftime-style timestamp escapes. It is a leaf any component
// can call through its run(ctx) context; it has no dependency on the
// runtime or compiler packages.
package interpolate

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// InterpolationContext carries the values an interpolated string may
// reference.
type InterpolationContext struct {
	SourceName string
	PipelineID string
	// Now is the timestamp used for the %Y/%m/%d/%H/%M/%S escapes. The
	// zero value means "use time.Now() at expansion time".
	Now time.Time
}

// Case selects optional casing applied to %N and %i expansions, matching
// the teacher's cases.Title/Upper/Lower helpers.
type Case int

const (
	// AsIs leaves the substituted text unchanged.
	AsIs Case = iota
	Upper
	Lower
	Title
)

var titleCaser = cases.Title(language.Und)
var upperCaser = cases.Upper(language.Und)
var lowerCaser = cases.Lower(language.Und)

func applyCase(s string, c Case) string {
	switch c {
	case Upper:
		return upperCaser.String(s)
	case Lower:
		return lowerCaser.String(s)
	case Title:
		return titleCaser.String(s)
	default:
		return s
	}
}

// Interpolate replaces every recognized escape in template with its value
// from ctx, applying nameCase to %N and %i substitutions. Unrecognized
// escapes (an unescaped '%' not followed by a known letter) pass through
// unchanged, including the '%' itself.
func Interpolate(template string, ctx InterpolationContext, nameCase Case) string {
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	runes := []rune(template)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '%' || i == len(runes)-1 {
			b.WriteRune(r)
			continue
		}
		next := runes[i+1]
		switch next {
		case 'N':
			b.WriteString(applyCase(ctx.SourceName, nameCase))
		case 'i':
			b.WriteString(applyCase(ctx.PipelineID, nameCase))
		case 'Y':
			b.WriteString(fmt.Sprintf("%04d", now.Year()))
		case 'm':
			b.WriteString(fmt.Sprintf("%02d", int(now.Month())))
		case 'd':
			b.WriteString(fmt.Sprintf("%02d", now.Day()))
		case 'H':
			b.WriteString(fmt.Sprintf("%02d", now.Hour()))
		case 'M':
			b.WriteString(fmt.Sprintf("%02d", now.Minute()))
		case 'S':
			b.WriteString(fmt.Sprintf("%02d", now.Second()))
		case '%':
			b.WriteRune('%')
		default:
			b.WriteRune(r)
			b.WriteRune(next)
			i++
			continue
		}
		i++
	}
	return b.String()
}
