package api

const batchSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "serial":   {"type": "array", "items": {"$ref": "#/definitions/entry"}},
    "parallel": {"type": "array", "items": {"$ref": "#/definitions/entry"}}
  },
  "anyOf": [
    {"required": ["serial"]},
    {"required": ["parallel"]}
  ],
  "definitions": {
    "entry": {
      "type": "object",
      "required": ["productIdentification", "deviceIdentification", "msgType", "serviceCode", "commandName", "commandCode", "params"],
      "properties": {
        "productIdentification": {"type": "string", "minLength": 1},
        "deviceIdentification":  {"type": "string", "minLength": 1},
        "msgType":     {"type": "string", "minLength": 1},
        "msgId":       {"type": "string"},
        "serviceCode": {"type": "string", "minLength": 1},
        "commandName": {"type": "string", "minLength": 1},
        "commandCode": {"type": "string", "minLength": 1},
        "params":      {"type": "object"},
        "extendInfo":  {"type": "object"}
      }
    }
  }
}`

const closeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["clientIds"],
  "properties": {
    "clientIds": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
  }
}`

const customMessageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["topic"],
  "properties": {
    "topic":   {"type": "string", "pattern": "^/iot/"},
    "payload": {}
  }
}`

const otaSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "fileUrl"],
  "properties": {
    "version":             {"type": "string", "minLength": 1},
    "fileUrl":             {"type": "string", "minLength": 1},
    "fileSize":            {"type": "integer", "minimum": 0},
    "fileDigestAlgorithm": {"type": "string"},
    "fileDigestValue":     {"type": "string"}
  }
}`
