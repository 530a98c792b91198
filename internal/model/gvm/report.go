package gvm

// ResultCount 报告结果计数
type ResultCount struct {
	Full     string `json:"full"`
	Filtered string `json:"filtered"`
}

// ReportSummary 报告概要
type ReportSummary struct {
	ReportID    string       `json:"report_id"`
	ScanStart   string       `json:"scan_start"`
	ScanEnd     string       `json:"scan_end"`
	TaskName    string       `json:"task_name"`
	VulnCount   string       `json:"vuln_count"`
	ResultCount *ResultCount `json:"result_count,omitempty"`
}

// ScanRequest 发起扫描请求
type ScanRequest struct {
	TargetName   string `json:"target_name" binding:"required"`
	Hosts        string `json:"hosts" binding:"required"`
	ScanConfigID string `json:"scan_config_id" binding:"required"`
}

// ScanResponse 发起扫描响应
type ScanResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}
