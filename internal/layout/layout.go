// Package layout holds the heading-orphan heuristic used when a rendered
// document is sliced into fixed-height pages. It works on geometry snapshots
// only, so it needs no rendering surface.
package layout

import (
	"math"
	"sort"
)

// A4 proportions, height over width
const A4Ratio = 297.0 / 210.0

// Box is the measured geometry of one heading, in surface pixels, relative to
// the top of the captured area.
type Box struct {
	Index  int     `json:"index"` // position among the measured headings
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// Page describes how the capture will be sliced
type Page struct {
	Height float64 // slice height in surface pixels
	// KeepWithNext is the amount of content that must fit below a heading on
	// the same page.
	KeepWithNext float64
}

// Adjustment asks for extra top margin on a heading
type Adjustment struct {
	Index       int     `json:"index"`
	ExtraMargin float64 `json:"extra_margin"`
}

// PageHeightForWidth returns the A4 slice height for a surface width
func PageHeightForWidth(width float64) float64 {
	return math.Floor(width * A4Ratio)
}

// Adjust walks headings in document order and pushes each one that would be
// stranded at the bottom of a page onto the next page. Earlier pushes move
// everything below them, so projected positions include the running shift.
func Adjust(boxes []Box, page Page) []Adjustment {
	if page.Height <= 0 || len(boxes) == 0 {
		return nil
	}

	ordered := append([]Box(nil), boxes...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Top < ordered[j].Top })

	var adjustments []Adjustment
	shift := 0.0
	for _, b := range ordered {
		need := b.Height + page.KeepWithNext
		if need > page.Height {
			// Would not fit on an empty page either.
			continue
		}

		projected := b.Top + shift
		pageStart := math.Floor(projected/page.Height) * page.Height
		if projected <= pageStart {
			continue
		}
		remaining := pageStart + page.Height - projected
		if remaining >= need {
			continue
		}

		adjustments = append(adjustments, Adjustment{Index: b.Index, ExtraMargin: remaining})
		shift += remaining
	}
	return adjustments
}

// Pages returns how many slices of page.Height a capture of totalHeight
// needs after the adjustments have been applied.
func Pages(totalHeight float64, adjustments []Adjustment, page Page) int {
	if page.Height <= 0 {
		return 0
	}
	for _, a := range adjustments {
		totalHeight += a.ExtraMargin
	}
	n := int(math.Ceil(totalHeight / page.Height))
	if n < 1 {
		n = 1
	}
	return n
}
