package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scan-io-git/autofix/internal/findings"
)

type zapReport struct {
	Site []struct {
		Name   string     `json:"@name"`
		Alerts []zapAlert `json:"alerts"`
	} `json:"site"`
}

type zapAlert struct {
	PluginID  string `json:"pluginid"`
	Alert     string `json:"alert"`
	Name      string `json:"name"`
	RiskCode  string `json:"riskcode"`
	Desc      string `json:"desc"`
	CWEID     string `json:"cweid"`
	Reference string `json:"reference"`
	Instances []struct {
		URI    string `json:"uri"`
		Method string `json:"method"`
		Param  string `json:"param"`
	} `json:"instances"`
}

var zapRisk = map[string]string{
	"3": "high",
	"2": "medium",
	"1": "low",
	"0": "info",
}

type zapAdapter struct{}

func (a *zapAdapter) Format() string { return FormatZAP }

func (a *zapAdapter) Detect(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, hasSite := probe["site"]
	return hasSite
}

func (a *zapAdapter) Parse(data []byte) ([]Record, error) {
	var report zapReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("invalid ZAP report: %w", err)
	}

	var records []Record
	for _, site := range report.Site {
		for _, alert := range site.Alerts {
			name := alert.Alert
			if name == "" {
				name = alert.Name
			}
			category := name
			if c, ok := findings.KnownCategory("cwe-" + alert.CWEID); ok && alert.CWEID != "" {
				category = c
			}

			base := Record{
				Source:      "zap",
				Category:    category,
				RuleID:      alert.PluginID,
				Title:       name,
				Description: stripTags(alert.Desc),
				RawSeverity: zapRisk[alert.RiskCode],
			}
			if alert.Reference != "" {
				base.References = []string{stripTags(alert.Reference)}
			}

			if len(alert.Instances) == 0 {
				base.Location = findings.Location{URL: site.Name}
				records = append(records, base)
				continue
			}
			for _, inst := range alert.Instances {
				rec := base
				rec.Location = findings.Location{URL: inst.URI}
				if inst.Param != "" {
					rec.Location.Component = inst.Method + " " + inst.Param
				}
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

var tagReplacer = strings.NewReplacer("<p>", "", "</p>", "\n")

func stripTags(s string) string {
	return strings.TrimSpace(tagReplacer.Replace(s))
}
