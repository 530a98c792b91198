package gvm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVulnerabilityRecordDocument(t *testing.T) {
	rec := VulnerabilityRecord{
		ID:           "r-1",
		Title:        "OpenSSH Information Disclosure",
		CreationTime: " 2025-03-02T10:12:44Z ",
		Host:         HostInfo{Hostname: "bastion", IP: "10.0.0.5"},
		Port:         "22/tcp",
		NVT:          NVTInfo{OID: "1.3.6", CVSSBase: "5.3", SeverityScore: "n/a"},
		Threat:       "Medium",
		Severity:     "5.3",
		QoD:          "80",
	}

	doc := rec.Document()
	assert.Equal(t, "2025-03-02T10:12:44Z", doc.CreationTime)
	require.NotNil(t, doc.Severity)
	assert.Equal(t, 5.3, *doc.Severity)
	require.NotNil(t, doc.QoD)
	assert.Equal(t, 80, *doc.QoD)
	require.NotNil(t, doc.NVT.CVSSBase)
	assert.Nil(t, doc.NVT.SeverityScore)
	assert.Equal(t, "10.0.0.5", doc.Host.IP)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "severity_score")
	assert.NotContains(t, string(data), "modification_time")
}

func TestVulnerabilityRecordDocumentDropsInvalidFields(t *testing.T) {
	doc := (&VulnerabilityRecord{ID: "r-2", Host: HostInfo{Hostname: "h", IP: "not-an-ip"}, QoD: "high"}).Document()
	assert.Equal(t, "", doc.Host.IP)
	assert.Nil(t, doc.QoD)
	assert.Nil(t, doc.Severity)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r-2","host":{"hostname":"h"},"nvt":{}}`, string(data))
}

func TestReportRecordRecords(t *testing.T) {
	rep := ReportRecord{
		ReportID:         "rep",
		CreationTime:     "c",
		ModificationTime: "m",
		Results: []ResultSummary{
			{ID: "a", Name: "A", Severity: "9.8", Threat: "High", Description: "d"},
			{ID: "b", Name: "B"},
		},
	}
	records := rep.Records()
	require.Len(t, records, 2)
	assert.Equal(t, VulnerabilityRecord{
		ID: "a", Title: "A", CreationTime: "c", ModificationTime: "m",
		Severity: "9.8", Threat: "High", Description: "d",
	}, records[0])
	assert.Empty(t, (&ReportRecord{}).Records())
}
