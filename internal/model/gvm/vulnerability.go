/**
 * 模型:漏洞记录
 * @author: sun977
 * @date: 2025.11.04
 * @description: 详细报告解析产物(扁平漏洞记录/报告级记录)及入索引文档
 * @func: VulnerabilityRecord、ReportRecord、IndexDocument
 */
package gvm

import (
	"net"
	"strconv"
	"strings"
)

// HostInfo 主机信息
type HostInfo struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
}

// NVTInfo 检测脚本(NVT)描述
type NVTInfo struct {
	OID           string `json:"oid"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	Family        string `json:"family"`
	CVSSBase      string `json:"cvss_base"`
	Tags          string `json:"tags"`
	Solution      string `json:"solution"`
	SeverityScore string `json:"severity_score"`
	SeverityValue string `json:"severity_value"`
}

// VulnerabilityRecord 扁平漏洞记录，解析的最小单元
// 字段保持扫描管理器返回的原始文本，缺失字段为空串
type VulnerabilityRecord struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	CreationTime     string   `json:"creation_time"`
	ModificationTime string   `json:"modification_time"`
	Host             HostInfo `json:"host"`
	Port             string   `json:"port"`
	NVT              NVTInfo  `json:"nvt"`
	Threat           string   `json:"threat"`
	Severity         string   `json:"severity"`
	QoD              string   `json:"qod"`
	Description      string   `json:"description"`
}

// VulnerabilityFile 解析结果文件(标准格式)
type VulnerabilityFile struct {
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
}

// ResultSummary 流式解析产出的轻量结果
type ResultSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Severity    string `json:"severity"`
	Threat      string `json:"threat"`
	Description string `json:"description"`
}

// ReportRecord 流式解析产出的报告级记录(兼容格式)
type ReportRecord struct {
	ReportID         string          `json:"report_id"`
	Owner            string          `json:"owner"`
	CreationTime     string          `json:"creation_time"`
	ModificationTime string          `json:"modification_time"`
	Results          []ResultSummary `json:"results"`
}

// Records 把报告级记录展开成漏洞记录，时间字段继承自报告
func (r *ReportRecord) Records() []VulnerabilityRecord {
	records := make([]VulnerabilityRecord, 0, len(r.Results))
	for _, res := range r.Results {
		records = append(records, VulnerabilityRecord{
			ID:               res.ID,
			Title:            res.Name,
			CreationTime:     r.CreationTime,
			ModificationTime: r.ModificationTime,
			Threat:           res.Threat,
			Severity:         res.Severity,
			Description:      res.Description,
		})
	}
	return records
}

// IndexDocument 写入检索索引的文档
// 数值/日期/IP 字段在为空或无法解析时省略，避免索引映射拒绝整条文档
type IndexDocument struct {
	ID               string    `json:"id"`
	Title            string    `json:"title,omitempty"`
	CreationTime     string    `json:"creation_time,omitempty"`
	ModificationTime string    `json:"modification_time,omitempty"`
	Host             IndexHost `json:"host"`
	Port             string    `json:"port,omitempty"`
	NVT              IndexNVT  `json:"nvt"`
	Threat           string    `json:"threat,omitempty"`
	Severity         *float64  `json:"severity,omitempty"`
	QoD              *int      `json:"qod,omitempty"`
	Description      string    `json:"description,omitempty"`
}

// IndexHost 索引文档中的主机子对象
type IndexHost struct {
	Hostname string `json:"hostname,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// IndexNVT 索引文档中的 NVT 子对象
type IndexNVT struct {
	OID           string   `json:"oid,omitempty"`
	Type          string   `json:"type,omitempty"`
	Name          string   `json:"name,omitempty"`
	Family        string   `json:"family,omitempty"`
	CVSSBase      *float64 `json:"cvss_base,omitempty"`
	Tags          string   `json:"tags,omitempty"`
	Solution      string   `json:"solution,omitempty"`
	SeverityScore *float64 `json:"severity_score,omitempty"`
	SeverityValue string   `json:"severity_value,omitempty"`
}

// Document 转换为索引文档
func (v *VulnerabilityRecord) Document() *IndexDocument {
	return &IndexDocument{
		ID:               v.ID,
		Title:            v.Title,
		CreationTime:     strings.TrimSpace(v.CreationTime),
		ModificationTime: strings.TrimSpace(v.ModificationTime),
		Host: IndexHost{
			Hostname: v.Host.Hostname,
			IP:       parseIP(v.Host.IP),
		},
		Port: v.Port,
		NVT: IndexNVT{
			OID:           v.NVT.OID,
			Type:          v.NVT.Type,
			Name:          v.NVT.Name,
			Family:        v.NVT.Family,
			CVSSBase:      parseFloat(v.NVT.CVSSBase),
			Tags:          v.NVT.Tags,
			Solution:      v.NVT.Solution,
			SeverityScore: parseFloat(v.NVT.SeverityScore),
			SeverityValue: v.NVT.SeverityValue,
		},
		Threat:      v.Threat,
		Severity:    parseFloat(v.Severity),
		QoD:         parseInt(v.QoD),
		Description: v.Description,
	}
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if net.ParseIP(s) == nil {
		return ""
	}
	return s
}
