package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

func formatRatingWithColor(rating string) string {
	switch strings.ToLower(rating) {
	case "strong":
		return colorSuccess(rating)
	case "moderate":
		return colorWarn(rating)
	case "weak":
		return colorError(rating)
	default:
		return rating
	}
}

// formatScoreWithColor renders "NN/100" in the color of its rating band.
func formatScoreWithColor(score int) string {
	text := fmt.Sprintf("%d/100", score)
	switch {
	case score >= 80:
		return colorSuccess(text)
	case score >= 50:
		return colorWarn(text)
	default:
		return colorError(text)
	}
}

func formatPresence(present bool) string {
	if present {
		return colorSuccess("✓")
	}
	return colorError("✗")
}

// scoreBar draws a fixed-width gauge for a 0-100 score.
func scoreBar(score, width int) string {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	filled := score * width / 100
	if filled == 0 && score > 0 {
		filled = 1
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
