package reasoning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xilian/diagnostics-service/internal/models"
)

// systemPrompt frames the model as an equipment diagnostics assistant
const systemPrompt = `You are an industrial equipment diagnostics assistant.
You are given a multi-turn investigation of one device plus supporting sensor
evidence. Reason about likely fault causes and respond with a concise
diagnosis and recommended next checks. If the evidence is marked partial,
say so and qualify your conclusions.`

// FormatEvidence renders an evidence summary as prompt text. The rendering
// is deterministic so identical evidence always produces identical prompts.
func FormatEvidence(evidence models.EvidenceSummary) string {
	var b strings.Builder

	if len(evidence.ProvidedReadings) > 0 {
		b.WriteString("Caller-supplied readings:\n")
		metrics := make([]string, 0, len(evidence.ProvidedReadings))
		for m := range evidence.ProvidedReadings {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)
		for _, m := range metrics {
			fmt.Fprintf(&b, "  %s = %g\n", m, evidence.ProvidedReadings[m])
		}
	}

	if evidence.ReadingCount > 0 {
		fmt.Fprintf(&b, "Stored readings examined: %d\n", evidence.ReadingCount)
	}

	if len(evidence.Anomalies) > 0 {
		b.WriteString("Anomalies flagged:\n")
		for _, a := range evidence.Anomalies {
			fmt.Fprintf(&b, "  %s %s: current=%g expected=%g deviation=%.2f severity=%s\n",
				a.MetricName, a.Algorithm, a.CurrentValue, a.ExpectedValue, a.Deviation, a.Severity)
		}
	}

	if len(evidence.TrendBuckets) > 0 {
		b.WriteString("Trend baselines:\n")
		for _, t := range evidence.TrendBuckets {
			fmt.Fprintf(&b, "  %s @ %s: count=%d mean=%.3f min=%.3f max=%.3f\n",
				t.MetricName, t.BucketStart.Format("2006-01-02 15:04"), t.Count, t.Mean, t.Min, t.Max)
		}
	}

	if evidence.Partial {
		b.WriteString("NOTE: evidence gathering partially failed; this is an incomplete picture.\n")
	}

	if b.Len() == 0 {
		return "No supporting evidence was gathered."
	}
	return b.String()
}
