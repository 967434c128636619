package topic

import "github.com/ibs-source/iot-router/internal/message"

const prefix = "/iot/{product}/{device}/"

// Template kinds.
const (
	ConfigDownstreamPush                 Kind = "CONFIG_DOWNSTREAM_PUSH"
	ConfigDownstreamQueryAck             Kind = "CONFIG_DOWNSTREAM_QUERY_ACK"
	ConfigUpstreamQuery                  Kind = "CONFIG_UPSTREAM_QUERY"
	DeviceTagDownstreamReportAck         Kind = "DEVICE_TAG_DOWNSTREAM_REPORT_ACK"
	DeviceTagUpstreamDelete              Kind = "DEVICE_TAG_UPSTREAM_DELETE"
	DeviceTagUpstreamReport              Kind = "DEVICE_TAG_UPSTREAM_REPORT"
	DeviceTagDownstreamDeleteAck         Kind = "DEVICE_TAG_DOWNSTREAM_DELETE_ACK"
	ShadowDownstreamDesired              Kind = "SHADOW_DOWNSTREAM_DESIRED"
	ShadowUpstreamReport                 Kind = "SHADOW_UPSTREAM_REPORT"
	NtpDownstreamResponse                Kind = "NTP_DOWNSTREAM_RESPONSE"
	NtpUpstreamRequest                   Kind = "NTP_UPSTREAM_REQUEST"
	BroadcastDownstream                  Kind = "BROADCAST_DOWNSTREAM"
	OtaDownstreamUpgradeTask             Kind = "OTA_DOWNSTREAM_UPGRADE_TASK"
	OtaUpstreamVersionReport             Kind = "OTA_UPSTREAM_VERSION_REPORT"
	OtaUpstreamProgressReport            Kind = "OTA_UPSTREAM_PROGRESS_REPORT"
	OtaUpstreamFirmwareQuery             Kind = "OTA_UPSTREAM_FIRMWARE_QUERY"
	ServiceDownstreamInvoke              Kind = "SERVICE_DOWNSTREAM_INVOKE"
	ServiceUpstreamInvokeResponse        Kind = "SERVICE_UPSTREAM_INVOKE_RESPONSE"
	PropertyDownstreamDesiredSet         Kind = "PROPERTY_DOWNSTREAM_DESIRED_SET"
	PropertyUpstreamDesiredSetAck        Kind = "PROPERTY_UPSTREAM_DESIRED_SET_ACK"
	PropertyDownstreamDesiredQuery       Kind = "PROPERTY_DOWNSTREAM_DESIRED_QUERY"
	PropertyUpstreamDesiredQueryResponse Kind = "PROPERTY_UPSTREAM_DESIRED_QUERY_RESPONSE"
	PropertyDownstreamReportAck          Kind = "PROPERTY_DOWNSTREAM_REPORT_ACK"
	PropertyUpstreamReport               Kind = "PROPERTY_UPSTREAM_REPORT"
	EventDownstreamReportAck             Kind = "EVENT_DOWNSTREAM_REPORT_ACK"
	EventUpstreamReport                  Kind = "EVENT_UPSTREAM_REPORT"
	LogDownstreamReportAck               Kind = "LOG_DOWNSTREAM_REPORT_ACK"
	LogUpstreamReport                    Kind = "LOG_UPSTREAM_REPORT"
)

func up(kind Kind, suffix string, method message.Method, desc string) Template {
	return Template{Kind: kind, Pattern: prefix + suffix, Direction: Upstream, Method: method, Description: desc}
}

func down(kind Kind, suffix string, method message.Method, desc string) Template {
	return Template{Kind: kind, Pattern: prefix + suffix, Direction: Downstream, Method: method, Description: desc}
}

// Catalog returns the device topic templates.
func Catalog() []Template {
	return []Template{
		down(ConfigDownstreamPush, "config/downstream/push", message.MethodConfigPush, "platform pushes configuration"),
		down(ConfigDownstreamQueryAck, "config/downstream/query/ack", message.MethodConfigPush, "answer to a configuration query"),
		up(ConfigUpstreamQuery, "config/upstream/query", message.MethodConfigPush, "device queries its configuration"),

		down(DeviceTagDownstreamReportAck, "device/tag/downstream/report/ack", "", "acknowledges a tag report"),
		up(DeviceTagUpstreamDelete, "device/tag/upstream/delete", "", "device deletes tags"),
		up(DeviceTagUpstreamReport, "device/tag/upstream/report", "", "device reports tags"),
		down(DeviceTagDownstreamDeleteAck, "device/tag/downstream/delete/ack", "", "acknowledges a tag delete"),

		down(ShadowDownstreamDesired, "shadow/downstream/desired", "", "platform sets desired shadow"),
		up(ShadowUpstreamReport, "shadow/upstream/report", "", "device reports its shadow"),

		down(NtpDownstreamResponse, "ntp/downstream/response", "", "time sync response"),
		up(NtpUpstreamRequest, "ntp/upstream/request", "", "time sync request"),

		down(BroadcastDownstream, "broadcast/downstream/{identifier}", "", "product wide broadcast"),

		down(OtaDownstreamUpgradeTask, "ota/downstream/upgrade/task", message.MethodOtaUpgrade, "firmware upgrade task"),
		up(OtaUpstreamVersionReport, "ota/upstream/version/report", message.MethodOtaProgress, "device reports firmware version"),
		up(OtaUpstreamProgressReport, "ota/upstream/progress/report", message.MethodOtaProgress, "device reports upgrade progress"),
		up(OtaUpstreamFirmwareQuery, "ota/upstream/firmware/query", message.MethodOtaProgress, "device queries available firmware"),

		down(ServiceDownstreamInvoke, "service/downstream/invoke/{identifier}", message.MethodServiceInvoke, "platform invokes a device service"),
		up(ServiceUpstreamInvokeResponse, "service/upstream/invoke/{identifier}/response", message.MethodServiceInvoke, "device answers a service invocation"),

		down(PropertyDownstreamDesiredSet, "property/downstream/desired/set", message.MethodPropertySet, "platform sets desired properties"),
		up(PropertyUpstreamDesiredSetAck, "property/upstream/desired/set/ack", message.MethodPropertySet, "device acknowledges desired properties"),
		down(PropertyDownstreamDesiredQuery, "property/downstream/desired/query", message.MethodPropertySet, "platform queries desired properties"),
		up(PropertyUpstreamDesiredQueryResponse, "property/upstream/desired/query/response", message.MethodPropertySet, "device answers a desired query"),
		down(PropertyDownstreamReportAck, "property/downstream/report/ack", message.MethodPropertyPost, "acknowledges a property report"),
		up(PropertyUpstreamReport, "property/upstream/report", message.MethodPropertyPost, "device reports properties"),

		down(EventDownstreamReportAck, "event/downstream/report/{identifier}/ack", message.MethodEventPost, "acknowledges an event"),
		up(EventUpstreamReport, "event/upstream/report/{identifier}", message.MethodEventPost, "device reports an event"),

		down(LogDownstreamReportAck, "log/downstream/report/ack", message.MethodLogPost, "acknowledges a log report"),
		up(LogUpstreamReport, "log/upstream/report", message.MethodLogPost, "device reports logs"),
	}
}
