package command

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/ibs-source/iot-router/pkg/jsonfast"
)

// buildPayload renders the params of the downstream message for r.
func buildPayload(r Resolved) ([]byte, error) {
	params := []byte("{}")
	if len(r.Entry.Params) > 0 {
		var err error
		if params, err = json.Marshal(r.Entry.Params); err != nil {
			return nil, fmt.Errorf("failed to encode params of %s: %w", r.Entry.CommandCode, err)
		}
	}

	b := jsonfast.New(256 + len(params) + len(r.Entry.ExtendInfo))
	b.BeginObject()
	b.AddStringField("productIdentification", r.Device.ProductIdentification)
	b.AddStringField("deviceIdentification", r.Device.DeviceIdentification)
	b.AddStringField("msgType", r.Entry.MsgType)
	b.AddStringFieldIfNotEmpty("msgId", r.Entry.MsgID)
	b.AddStringField("serviceCode", r.Entry.ServiceCode)
	b.AddStringField("commandName", r.Entry.CommandName)
	b.AddStringField("commandCode", r.Entry.CommandCode)
	b.AddRawJSONField("params", params)
	if len(r.Entry.ExtendInfo) > 0 {
		if !json.Valid(r.Entry.ExtendInfo) {
			return nil, fmt.Errorf("extend info of %s is not JSON", r.Entry.CommandCode)
		}
		b.AddRawJSONField("extendInfo", r.Entry.ExtendInfo)
	}
	b.AddRawJSONField("encryption", encryptionJSON(r))
	b.EndObject()
	return b.Clone(), nil
}

func encryptionJSON(r Resolved) []byte {
	b := jsonfast.New(128)
	b.BeginObject()
	b.AddStringField("signKey", r.Encryption.SignKey)
	if r.Encryption.CipherConfigured() {
		b.AddStringField("encryptKey", r.Encryption.EncryptKey)
		b.AddStringField("encryptVector", r.Encryption.EncryptVector)
		b.AddInt64Field("cipherFlag", int64(r.Encryption.CipherFlag))
	}
	b.EndObject()
	return b.Bytes()
}
