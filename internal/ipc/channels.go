package ipc

// Channel names are part of the wire contract between daemon and renderer.
type Channel string

const (
	AddSite        Channel = "add-site"
	RemoveSite     Channel = "remove-site"
	GetSites       Channel = "get-sites"
	UpdateSite     Channel = "update-site"
	RemoveMonitor  Channel = "remove-monitor"
	DeleteAllSites Channel = "delete-all-sites"

	StartMonitoring        Channel = "start-monitoring"
	StopMonitoring         Channel = "stop-monitoring"
	StartMonitoringForSite Channel = "start-monitoring-for-site"
	StopMonitoringForSite  Channel = "stop-monitoring-for-site"
	CheckSiteNow           Channel = "check-site-now"

	ExportData           Channel = "export-data"
	ImportData           Channel = "import-data"
	UpdateHistoryLimit   Channel = "update-history-limit"
	GetHistoryLimit      Channel = "get-history-limit"
	DownloadSQLiteBackup Channel = "download-sqlite-backup"
	ResetSettings        Channel = "reset-settings"

	GetMonitorTypes          Channel = "get-monitor-types"
	FormatMonitorDetail      Channel = "format-monitor-detail"
	FormatMonitorTitleSuffix Channel = "format-monitor-title-suffix"
	ValidateMonitorData      Channel = "validate-monitor-data"

	RequestFullSync Channel = "request-full-sync"
	GetSyncStatus   Channel = "get-sync-status"

	OpenExternal Channel = "open-external"
)

type Domain string

const (
	DomainSites       Domain = "sites"
	DomainMonitoring  Domain = "monitoring"
	DomainData        Domain = "data"
	DomainMonitorType Domain = "monitor-types"
	DomainStateSync   Domain = "state-sync"
	DomainSystem      Domain = "system"
)

// ChannelInfo documents a channel's domain and positional parameters.
type ChannelInfo struct {
	Name   Channel  `json:"name"`
	Domain Domain   `json:"domain"`
	Params []string `json:"params"`
}

// Catalogue lists every channel the daemon serves.
var Catalogue = []ChannelInfo{
	{AddSite, DomainSites, []string{"site"}},
	{RemoveSite, DomainSites, []string{"identifier"}},
	{GetSites, DomainSites, nil},
	{UpdateSite, DomainSites, []string{"identifier", "updates"}},
	{RemoveMonitor, DomainSites, []string{"siteIdentifier", "monitorId"}},
	{DeleteAllSites, DomainSites, nil},

	{StartMonitoring, DomainMonitoring, nil},
	{StopMonitoring, DomainMonitoring, nil},
	{StartMonitoringForSite, DomainMonitoring, []string{"identifier", "monitorId?"}},
	{StopMonitoringForSite, DomainMonitoring, []string{"identifier", "monitorId?"}},
	{CheckSiteNow, DomainMonitoring, []string{"identifier", "monitorId"}},

	{ExportData, DomainData, nil},
	{ImportData, DomainData, []string{"data"}},
	{UpdateHistoryLimit, DomainData, []string{"limit"}},
	{GetHistoryLimit, DomainData, nil},
	{DownloadSQLiteBackup, DomainData, nil},
	{ResetSettings, DomainData, nil},

	{GetMonitorTypes, DomainMonitorType, nil},
	{FormatMonitorDetail, DomainMonitorType, []string{"type", "details"}},
	{FormatMonitorTitleSuffix, DomainMonitorType, []string{"type", "monitor"}},
	{ValidateMonitorData, DomainMonitorType, []string{"type", "data"}},

	{RequestFullSync, DomainStateSync, nil},
	{GetSyncStatus, DomainStateSync, nil},

	{OpenExternal, DomainSystem, []string{"url"}},
}

// Known reports whether name is part of the catalogue.
func Known(name Channel) bool {
	for _, c := range Catalogue {
		if c.Name == name {
			return true
		}
	}
	return false
}
