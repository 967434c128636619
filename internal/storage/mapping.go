package storage

import (
	"github.com/ibs-source/iot-router/internal/redis"
	"github.com/ibs-source/iot-router/internal/topic"
)

// historyTables maps upstream kinds to their history table. Kinds that are
// absent are not recorded.
var historyTables = map[topic.Kind]string{
	topic.PropertyUpstreamReport:               "st_property_upstream_report",
	topic.PropertyUpstreamDesiredSetAck:        "st_property_upstream_desired_set_ack",
	topic.PropertyUpstreamDesiredQueryResponse: "st_property_upstream_desired_query_response",
	topic.EventUpstreamReport:                  "st_event_upstream_report",
	topic.ServiceUpstreamInvokeResponse:        "st_service_upstream_invoke_response",
	topic.DeviceTagUpstreamReport:              "st_device_tag_upstream_report",
	topic.DeviceTagUpstreamDelete:              "st_device_tag_upstream_delete",
	topic.ShadowUpstreamReport:                 "st_shadow_upstream_report",
	topic.ConfigUpstreamQuery:                  "st_config_upstream_query",
	topic.NtpUpstreamRequest:                   "st_ntp_upstream_request",
	topic.OtaUpstreamVersionReport:             "st_ota_upstream_version_report",
	topic.OtaUpstreamProgressReport:            "st_ota_upstream_progress_report",
	topic.OtaUpstreamFirmwareQuery:             "st_ota_upstream_firmware_query",
	topic.LogUpstreamReport:                    "st_log_upstream_report",
}

// identifierKinds carry the topic identifier segment into history.
var identifierKinds = map[topic.Kind]bool{
	topic.EventUpstreamReport:           true,
	topic.ServiceUpstreamInvokeResponse: true,
}

// HistoryTable returns the history table of a kind.
func HistoryTable(kind topic.Kind) (string, bool) {
	table, ok := historyTables[kind]
	return table, ok
}

// ShadowAction is how a kind touches the device shadow.
type ShadowAction int

const (
	// TouchOnline refreshes connect_status and last_online_time only.
	TouchOnline ShadowAction = iota
	// MergeExtension replaces one sub-document of the extension field.
	MergeExtension
	// Overwrite replaces one hash field with the payload.
	Overwrite
	// OverwriteVersion replaces the version field with params.version.
	OverwriteVersion
)

// Source selects the message payload a shadow update reads.
type Source int

const (
	FromParams Source = iota
	FromData
)

// ShadowUpdate is the single shadow change a kind makes.
type ShadowUpdate struct {
	Action ShadowAction
	Field  string
	SubKey string
	Source Source
}

var shadowUpdates = map[topic.Kind]ShadowUpdate{
	topic.PropertyUpstreamReport:               {Action: MergeExtension, SubKey: redis.ExtensionProperties, Source: FromParams},
	topic.PropertyUpstreamDesiredSetAck:        {Action: MergeExtension, SubKey: redis.ExtensionDesired, Source: FromData},
	topic.PropertyUpstreamDesiredQueryResponse: {Action: MergeExtension, SubKey: redis.ExtensionDesired, Source: FromData},
	topic.EventUpstreamReport:                  {Action: MergeExtension, SubKey: redis.ExtensionEvents, Source: FromParams},
	topic.ServiceUpstreamInvokeResponse:        {Action: MergeExtension, SubKey: redis.ExtensionServiceResponse, Source: FromData},
	topic.OtaUpstreamFirmwareQuery:             {Action: MergeExtension, SubKey: redis.ExtensionOtaQuery, Source: FromData},
	topic.DeviceTagUpstreamReport:              {Action: Overwrite, Field: redis.FieldTags, Source: FromParams},
	topic.DeviceTagUpstreamDelete:              {Action: Overwrite, Field: redis.FieldTags, Source: FromParams},
	topic.ShadowUpstreamReport:                 {Action: Overwrite, Field: redis.FieldShadow, Source: FromParams},
	topic.ConfigUpstreamQuery:                  {Action: Overwrite, Field: redis.FieldConfig, Source: FromData},
	topic.OtaUpstreamProgressReport:            {Action: Overwrite, Field: redis.FieldOtaProgress, Source: FromParams},
	topic.OtaUpstreamVersionReport:             {Action: OverwriteVersion, Field: redis.FieldVersion, Source: FromParams},
}

// ShadowUpdateFor returns the shadow update of a kind. Unlisted kinds only
// refresh the online status.
func ShadowUpdateFor(kind topic.Kind) ShadowUpdate {
	if u, ok := shadowUpdates[kind]; ok {
		return u
	}
	return ShadowUpdate{Action: TouchOnline}
}
