package extractor

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"neogvm/internal/model/gvm"
)

// DocumentExtractor 整文档解析
// 定位 report → results → result，每个 result 输出一条 VulnerabilityRecord
type DocumentExtractor struct{}

// NewDocumentExtractor 创建整文档解析器
func NewDocumentExtractor() *DocumentExtractor {
	return &DocumentExtractor{}
}

// Name 策略名
func (e *DocumentExtractor) Name() string {
	return StrategyDocument
}

// reportNode 任意层级的 <report>，只展开嵌套 report 和结果集合
type reportNode struct {
	XMLName xml.Name
	Results []resultNode `xml:"results>result"`
	Reports []reportNode `xml:"report"`
}

type resultNode struct {
	ID               string    `xml:"id,attr"`
	Name             string    `xml:"name"`
	CreationTime     string    `xml:"creation_time"`
	ModificationTime string    `xml:"modification_time"`
	Host             *hostNode `xml:"host"`
	Port             string    `xml:"port"`
	NVT              *nvtNode  `xml:"nvt"`
	Threat           string    `xml:"threat"`
	Severity         string    `xml:"severity"`
	QoD              string    `xml:"qod>value"`
	Description      string    `xml:"description"`
}

type nvtNode struct {
	OID        string         `xml:"oid,attr"`
	Type       string         `xml:"type"`
	Name       string         `xml:"name"`
	Family     string         `xml:"family"`
	CVSSBase   string         `xml:"cvss_base"`
	Tags       string         `xml:"tags"`
	Solution   string         `xml:"solution"`
	Severities []severityNode `xml:"severities>severity"`
}

type severityNode struct {
	Score string `xml:"score"`
	Value string `xml:"value"`
}

// hostNode <host> 元素
// 地址可能出现在 </hostname> 之后的尾随文本里，也可能是 <host> 的前导文本，两处都没有时留空
type hostNode struct {
	Hostname string
	Address  string
}

// UnmarshalXML 逐 token 读取 host，保留 hostname 前后的文本
func (h *hostNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var (
		leading      strings.Builder
		trailing     strings.Builder
		seenHostname bool
		afterElement bool
	)

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "hostname" && !seenHostname {
				if err := d.DecodeElement(&h.Hostname, &t); err != nil {
					return err
				}
				seenHostname = true
				continue
			}
			if seenHostname {
				afterElement = true
			}
			if err := d.Skip(); err != nil {
				return err
			}
		case xml.CharData:
			switch {
			case seenHostname && !afterElement:
				trailing.Write(t)
			case !seenHostname:
				leading.Write(t)
			}
		case xml.EndElement:
			h.Address = strings.TrimSpace(trailing.String())
			if h.Address == "" {
				h.Address = strings.TrimSpace(leading.String())
			}
			return nil
		}
	}
}

// Extract 解析整篇文档
func (e *DocumentExtractor) Extract(ctx context.Context, r io.Reader) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var root reportNode
	if err := newDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}

	var results []resultNode
	if root.XMLName.Local == "report" {
		results = append(results, root.Results...)
	}
	collectResults(root.Reports, &results)

	records := make([]gvm.VulnerabilityRecord, 0, len(results))
	for i := range results {
		records = append(records, results[i].record())
	}
	return &Result{Strategy: StrategyDocument, Vulnerabilities: records}, nil
}

// collectResults 深度优先收集所有 report 下的结果，保持文档顺序
func collectResults(reports []reportNode, out *[]resultNode) {
	for i := range reports {
		*out = append(*out, reports[i].Results...)
		collectResults(reports[i].Reports, out)
	}
}

func (n *resultNode) record() gvm.VulnerabilityRecord {
	rec := gvm.VulnerabilityRecord{
		ID:               n.ID,
		Title:            n.Name,
		CreationTime:     n.CreationTime,
		ModificationTime: n.ModificationTime,
		Port:             n.Port,
		Threat:           n.Threat,
		Severity:         n.Severity,
		QoD:              n.QoD,
		Description:      n.Description,
	}
	if n.Host != nil {
		rec.Host = gvm.HostInfo{Hostname: n.Host.Hostname, IP: n.Host.Address}
	}
	if n.NVT != nil {
		rec.NVT = gvm.NVTInfo{
			OID:      n.NVT.OID,
			Type:     n.NVT.Type,
			Name:     n.NVT.Name,
			Family:   n.NVT.Family,
			CVSSBase: n.NVT.CVSSBase,
			Tags:     n.NVT.Tags,
			Solution: n.NVT.Solution,
		}
		if len(n.NVT.Severities) > 0 {
			rec.NVT.SeverityScore = n.NVT.Severities[0].Score
			rec.NVT.SeverityValue = n.NVT.Severities[0].Value
		}
	}
	return rec
}
