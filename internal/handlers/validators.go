package handlers

import (
	"fmt"
	"net/url"

	"uptime-watcher/internal/ipc"
)

// ExternalURL accepts absolute http and https URLs only.
func ExternalURL(value any, name string) string {
	if msg := ipc.RequiredString(value, name); msg != "" {
		return msg
	}
	u, err := url.Parse(value.(string))
	if err != nil || u.Host == "" {
		return fmt.Sprintf("%s must be a valid URL", name)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("%s must use http or https", name)
	}
	return ""
}

var (
	identifierParam = ipc.Param{Name: "identifier", Check: ipc.RequiredString}
	optMonitorParam = ipc.Param{Name: "monitorId", Check: ipc.OptionalString, Optional: true}
	monitorParam    = ipc.Param{Name: "monitorId", Check: ipc.RequiredString}
	typeParam       = ipc.Param{Name: "type", Check: ipc.RequiredString}
)

var validators = map[ipc.Channel]ipc.Validator{
	ipc.AddSite: ipc.Compose(
		ipc.Params(ipc.Param{Name: "site", Check: ipc.RequiredObject}),
		ipc.Field(0, "identifier", ipc.RequiredString, false),
		ipc.Field(0, "name", ipc.OptionalString, true),
		ipc.Field(0, "monitoring", ipc.OptionalBool, true),
		ipc.Field(0, "monitors", ipc.OptionalArray, true),
	),
	ipc.RemoveSite: ipc.Params(identifierParam),
	ipc.GetSites:   ipc.NoParams(),
	ipc.UpdateSite: ipc.Compose(
		ipc.Params(identifierParam, ipc.Param{Name: "updates", Check: ipc.RequiredObject}),
		ipc.Field(1, "name", ipc.OptionalString, true),
		ipc.Field(1, "monitoring", ipc.OptionalBool, true),
		ipc.Field(1, "monitors", ipc.OptionalArray, true),
	),
	ipc.RemoveMonitor:  ipc.Params(ipc.Param{Name: "siteIdentifier", Check: ipc.RequiredString}, monitorParam),
	ipc.DeleteAllSites: ipc.NoParams(),

	ipc.StartMonitoring:        ipc.NoParams(),
	ipc.StopMonitoring:         ipc.NoParams(),
	ipc.StartMonitoringForSite: ipc.Params(identifierParam, optMonitorParam),
	ipc.StopMonitoringForSite:  ipc.Params(identifierParam, optMonitorParam),
	ipc.CheckSiteNow:           ipc.Params(identifierParam, monitorParam),

	ipc.ExportData:           ipc.NoParams(),
	ipc.ImportData:           ipc.Params(ipc.Param{Name: "data", Check: ipc.RequiredString}),
	ipc.UpdateHistoryLimit:   ipc.Params(ipc.Param{Name: "limit", Check: ipc.NonNegativeInteger}),
	ipc.GetHistoryLimit:      ipc.NoParams(),
	ipc.DownloadSQLiteBackup: ipc.NoParams(),
	ipc.ResetSettings:        ipc.NoParams(),

	ipc.GetMonitorTypes:          ipc.NoParams(),
	ipc.FormatMonitorDetail:      ipc.Params(typeParam, ipc.Param{Name: "details", Check: ipc.OptionalString}),
	ipc.FormatMonitorTitleSuffix: ipc.Params(typeParam, ipc.Param{Name: "monitor", Check: ipc.RequiredObject}),
	ipc.ValidateMonitorData:      ipc.Params(typeParam, ipc.Param{Name: "data", Check: ipc.RequiredObject}),

	ipc.RequestFullSync: ipc.NoParams(),
	ipc.GetSyncStatus:   ipc.NoParams(),

	ipc.OpenExternal: ipc.Params(ipc.Param{Name: "url", Check: ExternalURL}),
}
