package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	dimColor  = color.New(color.Faint)
)

func verdictColor(v domain.Verdict) *color.Color {
	switch v {
	case domain.VerdictAccepted:
		return passColor
	case domain.VerdictTimeLimitExceeded, domain.VerdictMemoryLimitExceeded:
		return warnColor
	}
	return failColor
}

func printVerdict(w io.Writer, v *domain.JudgeVerdict) {
	for i, cr := range v.CaseResults {
		visibility := "hidden"
		if cr.IsPublic {
			visibility = "public"
		}
		fmt.Fprintf(w, "%3d  %-4s %-12s %6d ms %8.1f MB  %s\n",
			i+1,
			verdictColor(cr.Status).Sprint(cr.Status),
			cr.TestCaseID,
			cr.TimeMs,
			float64(cr.MemoryBytes)/(1<<20),
			dimColor.Sprint(visibility),
		)
	}
	if skipped := v.TotalCount - len(v.CaseResults); skipped > 0 && v.Status != domain.VerdictSourceError {
		fmt.Fprintln(w, dimColor.Sprintf("     %d case(s) not run", skipped))
	}

	fmt.Fprintf(w, "\n%s  %d/%d passed  max %d ms  avg %d ms  peak %.1f MB\n",
		verdictColor(v.Status).Sprint(v.Status),
		v.PassedCount, v.TotalCount,
		v.MaxTimeMs, v.AvgTimeMs,
		float64(v.MaxMemoryBytes)/(1<<20),
	)
	if v.ErrorMessage != "" {
		fmt.Fprintln(w, indent(v.ErrorMessage))
	}
}

func printAnalysis(w io.Writer, res *domain.AnalysisResult) {
	if res.Status == domain.AnalysisOK {
		fmt.Fprintln(w, passColor.Sprint("OK"))
		return
	}
	fmt.Fprintln(w, failColor.Sprint(res.Status))
	if res.Message != "" {
		fmt.Fprintln(w, indent(res.Message))
	}
	for _, v := range res.Violations {
		fmt.Fprintf(w, "  line %d: %s %s\n", v.Line, v.Type, v.Target)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
