package api

// methodSchema holds the JSON schemas of one method, "" disables validation
// of that side
type methodSchema struct {
	service string
	method  string
	params  string
	reply   string
}

// --------------------------------------------------------------------------
// Fragments
// --------------------------------------------------------------------------

const (
	schemaEmpty    = `{"type": "object"}`
	schemaString   = `{"type": "string"}`
	schemaStrings  = `{"type": "array", "items": {"type": "string"}}`
	schemaName     = `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string", "minLength": 1}}}`
	schemaToken    = `{"type": "object", "required": ["token"], "properties": {"token": {"type": "string"}}}`
	fragEmail      = `{"type": "string", "pattern": "^[^@\\s]+@[^@\\s]+$"}`
	fragBigInt     = `{"type": "integer", "minimum": 0}`
	fragAccessKeys = `{"type": "array", "items": {
		"type": "object",
		"required": ["access_key", "secret_key"],
		"properties": {"access_key": {"type": "string"}, "secret_key": {"type": "string"}}
	}}`
	fragNodes = `{"type": "array", "items": {
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"name": {"type": "string"},
			"peer": {"type": "string"},
			"rpc_address": {"type": "string"}
		}
	}}`
	fragTimeConfig = `{
		"type": "object",
		"required": ["timezone"],
		"properties": {
			"target_secret": {"type": "string"},
			"timezone": {"type": "string"},
			"ntp_server": {"type": "string"},
			"epoch": {"type": "integer"}
		}
	}`
	fragStorage = `{
		"type": "object",
		"properties": {
			"total": ` + fragBigInt + `,
			"free": ` + fragBigInt + `,
			"unavailable_free": ` + fragBigInt + `,
			"alloc": ` + fragBigInt + `,
			"real": ` + fragBigInt + `,
			"used": ` + fragBigInt + `
		}
	}`
	fragActivityFilter = `{
		"type": "object",
		"properties": {
			"event": {"type": "string"},
			"since": {"type": "integer"},
			"till": {"type": "integer"},
			"skip": {"type": "integer", "minimum": 0},
			"limit": {"type": "integer", "minimum": 0}
		}
	}`
)

// --------------------------------------------------------------------------
// Methods
// --------------------------------------------------------------------------

var methodSchemas = []methodSchema{
	// pool
	{ServicePool, MethodCreateNodesPool, `{
		"type": "object",
		"required": ["name", "nodes"],
		"properties": {"name": {"type": "string", "minLength": 1}, "nodes": ` + fragNodes + `}
	}`, schemaEmpty},
	{ServicePool, MethodCreateCloudPool, `{
		"type": "object",
		"required": ["name", "connection", "target_bucket"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"connection": {"type": "string"},
			"target_bucket": {"type": "string", "minLength": 1}
		}
	}`, schemaEmpty},
	{ServicePool, MethodUpdatePool, `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}, "new_name": {"type": "string", "minLength": 1}}
	}`, schemaEmpty},
	{ServicePool, MethodListPoolNodes, schemaName, `{
		"type": "object",
		"required": ["name", "nodes"],
		"properties": {"name": {"type": "string"}, "nodes": ` + fragNodes + `}
	}`},
	{ServicePool, MethodReadPool, schemaName, `{
		"type": "object",
		"required": ["name", "storage"],
		"properties": {
			"name": {"type": "string"},
			"storage": ` + fragStorage + `,
			"undeletable": {"enum": ["SYSTEM_ENTITY", "NOT_EMPTY", "IN_USE"]},
			"demo_pool": {"type": "boolean"}
		}
	}`},
	{ServicePool, MethodDeletePool, schemaName, schemaEmpty},
	{ServicePool, MethodAssignNodesToPool, `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}, "nodes": ` + fragNodes + `}
	}`, schemaEmpty},
	{ServicePool, MethodGetAssociatedBuckets, schemaName, schemaStrings},

	// system
	{ServiceSystem, MethodCreateSystem, `{
		"type": "object",
		"required": ["name", "email", "password"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"email": ` + fragEmail + `,
			"password": {"type": "string", "minLength": 1},
			"activation_code": {"type": "string"},
			"access_keys": ` + fragAccessKeys + `,
			"time_config": ` + fragTimeConfig + `,
			"dns_servers": {"type": "array", "items": {"type": "string"}},
			"dns_name": {"type": "string"}
		}
	}`, schemaToken},
	{ServiceSystem, MethodReadSystem, schemaEmpty, `{
		"type": "object",
		"required": ["name", "objects", "storage", "nodes"],
		"properties": {
			"name": {"type": "string"},
			"objects": ` + fragBigInt + `,
			"storage": ` + fragStorage + `,
			"system_cap": {"type": "integer"}
		}
	}`},
	{ServiceSystem, MethodUpdateSystem, schemaName, schemaEmpty},
	{ServiceSystem, MethodDeleteSystem, schemaEmpty, schemaEmpty},
	{ServiceSystem, MethodListSystems, schemaEmpty, `{
		"type": "object",
		"required": ["systems"],
		"properties": {"systems": {"type": "array", "items": {
			"type": "object",
			"required": ["name"],
			"properties": {"id": {"type": "string"}, "name": {"type": "string"}}
		}}}
	}`},
	{ServiceSystem, MethodAddRole, `{
		"type": "object",
		"required": ["email", "role"],
		"properties": {"email": ` + fragEmail + `, "role": {"enum": ["admin", "user", "viewer", "operator"]}}
	}`, schemaEmpty},
	{ServiceSystem, MethodRemoveRole, `{
		"type": "object",
		"required": ["email", "role"],
		"properties": {"email": ` + fragEmail + `, "role": {"type": "string"}}
	}`, schemaEmpty},
	{ServiceSystem, MethodSetMaintenanceMode, `{
		"type": "object",
		"required": ["duration"],
		"properties": {"duration": {"type": "integer", "minimum": 0}}
	}`, schemaEmpty},
	{ServiceSystem, MethodSetWebserverMasterState, `{
		"type": "object",
		"required": ["is_master"],
		"properties": {"is_master": {"type": "boolean"}}
	}`, schemaEmpty},
	{ServiceSystem, MethodUpdateN2NConfig, `{
		"type": "object",
		"properties": {
			"tcp_tls": {"type": "boolean"},
			"tcp_active": {"type": "boolean"},
			"tcp_permanent_passive": {
				"type": "object",
				"required": ["min", "max"],
				"properties": {
					"min": {"type": "integer", "minimum": 1, "maximum": 65535},
					"max": {"type": "integer", "minimum": 1, "maximum": 65535}
				}
			},
			"tcp_transient": {"type": "boolean"},
			"tcp_simultaneous_open": {"type": "boolean"},
			"udp_dtls": {"type": "boolean"},
			"udp_port": {"type": "boolean"},
			"stun_servers": {"type": "array", "items": {"type": "string"}}
		}
	}`, schemaEmpty},
	{ServiceSystem, MethodUpdateBaseAddress, `{
		"type": "object",
		"required": ["base_address"],
		"properties": {"base_address": {"type": "string", "minLength": 1}}
	}`, schemaEmpty},
	{ServiceSystem, MethodUpdateHostname, `{
		"type": "object",
		"required": ["hostname"],
		"properties": {"hostname": {"type": "string", "minLength": 1}}
	}`, schemaEmpty},
	{ServiceSystem, MethodUpdatePhoneHomeConfig, `{
		"type": "object",
		"required": ["proxy_address"],
		"properties": {"proxy_address": {"type": ["string", "null"]}}
	}`, schemaEmpty},
	{ServiceSystem, MethodPhoneHomeCapacityNotified, schemaEmpty, schemaEmpty},
	{ServiceSystem, MethodConfigureRemoteSyslog, `{
		"type": "object",
		"required": ["enabled"],
		"properties": {
			"enabled": {"type": "boolean"},
			"protocol": {"enum": ["TCP", "UDP"]},
			"address": {"type": "string"},
			"port": {"type": "integer", "minimum": 1, "maximum": 65535}
		}
	}`, schemaEmpty},
	{ServiceSystem, MethodSetLastStatsReportTime, `{
		"type": "object",
		"required": ["last_stats_report"],
		"properties": {"last_stats_report": {"type": "integer", "minimum": 0}}
	}`, schemaEmpty},
	{ServiceSystem, MethodReadActivityLog, fragActivityFilter, `{
		"type": "object",
		"required": ["logs"],
		"properties": {"logs": {"type": "array"}}
	}`},
	{ServiceSystem, MethodExportActivityLog, fragActivityFilter, schemaString},
	{ServiceSystem, MethodDiagnoseSystem, schemaEmpty, schemaString},
	{ServiceSystem, MethodDiagnoseNode, `{
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": "string", "minLength": 1}, "name": {"type": "string"}}
	}`, schemaString},
	{ServiceSystem, MethodLogFrontendStackTrace, `{
		"type": "object",
		"required": ["stack_trace"]
	}`, schemaEmpty},
	{ServiceSystem, MethodValidateActivation, `{
		"type": "object",
		"required": ["code"],
		"properties": {"code": {"type": "string"}, "email": {"type": "string"}}
	}`, `{
		"type": "object",
		"required": ["valid"],
		"properties": {"valid": {"type": "boolean"}, "reason": {"type": "string"}}
	}`},

	// account
	{ServiceAccount, MethodCreateAccount, `{
		"type": "object",
		"required": ["name", "email", "password"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"email": ` + fragEmail + `,
			"password": {"type": "string", "minLength": 1},
			"access_keys": ` + fragAccessKeys + `,
			"allowed_buckets": {"type": "array", "items": {"type": "string"}},
			"new_system_parameters": {
				"type": "object",
				"required": ["account_id", "allowed_buckets", "new_system_id"],
				"properties": {
					"account_id": {"type": "string"},
					"allowed_buckets": {"type": "array", "items": {"type": "string"}},
					"new_system_id": {"type": "string"}
				}
			}
		}
	}`, schemaToken},
	{ServiceAccount, MethodListAccounts, schemaEmpty, `{
		"type": "object",
		"required": ["accounts"],
		"properties": {"accounts": {"type": "array"}}
	}`},
	{ServiceAccount, MethodReadAccount, `{
		"type": "object",
		"required": ["email"],
		"properties": {"email": ` + fragEmail + `}
	}`, `{"type": "object", "required": ["name", "email"]}`},
	{ServiceAccount, MethodCreateAuth, `{
		"type": "object",
		"required": ["email", "password"],
		"properties": {
			"email": ` + fragEmail + `,
			"password": {"type": "string"},
			"system": {"type": "string"}
		}
	}`, schemaToken},

	// cluster_server
	{ServiceClusterServer, MethodUpdateTimeConfig, fragTimeConfig, schemaEmpty},
	{ServiceClusterServer, MethodUpdateDNSServers, `{
		"type": "object",
		"required": ["dns_servers"],
		"properties": {
			"target_secret": {"type": "string"},
			"dns_servers": {"type": "array", "items": {"type": "string"}}
		}
	}`, schemaEmpty},
	{ServiceClusterServer, MethodSetDebugLevel, `{
		"type": "object",
		"required": ["level"],
		"properties": {"target_secret": {"type": "string"}, "level": {"type": "integer", "minimum": 0}}
	}`, schemaEmpty},

	// cluster_internal
	{ServiceClusterInternal, MethodLoadSystemStore, `{
		"type": "object",
		"required": ["revision"],
		"properties": {"revision": {"type": "integer", "minimum": 0}}
	}`, schemaEmpty},

	// hosted_agents
	{ServiceHostedAgents, MethodCreateAgent, `{
		"type": "object",
		"required": ["name", "scale"],
		"properties": {
			"name": {"type": "string"},
			"demo": {"type": "boolean"},
			"access_keys": ` + fragAccessKeys + `,
			"scale": {"type": "integer", "minimum": 1},
			"storage_limit": {"type": "integer", "minimum": 0}
		}
	}`, schemaEmpty},

	// node
	{ServiceNode, MethodSyncMonitorToStore, schemaEmpty, schemaEmpty},
}
