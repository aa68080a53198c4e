package api

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/server"
)

// System methods
const (
	MethodCreateSystem              = "create_system"
	MethodReadSystem                = "read_system"
	MethodUpdateSystem              = "update_system"
	MethodDeleteSystem              = "delete_system"
	MethodListSystems               = "list_systems"
	MethodAddRole                   = "add_role"
	MethodRemoveRole                = "remove_role"
	MethodSetMaintenanceMode        = "set_maintenance_mode"
	MethodSetWebserverMasterState   = "set_webserver_master_state"
	MethodUpdateN2NConfig           = "update_n2n_config"
	MethodUpdateBaseAddress         = "update_base_address"
	MethodUpdateHostname            = "update_hostname"
	MethodUpdatePhoneHomeConfig     = "update_phone_home_config"
	MethodPhoneHomeCapacityNotified = "phone_home_capacity_notified"
	MethodConfigureRemoteSyslog     = "configure_remote_syslog"
	MethodSetLastStatsReportTime    = "set_last_stats_report_time"
	MethodReadActivityLog           = "read_activity_log"
	MethodExportActivityLog         = "export_activity_log"
	MethodDiagnoseSystem            = "diagnose_system"
	MethodDiagnoseNode              = "diagnose_node"
	MethodLogFrontendStackTrace     = "log_frontend_stack_trace"
	MethodValidateActivation        = "validate_activation"
)

// --------------------------------------------------------------------------
// Params
// --------------------------------------------------------------------------

// CreateSystemParams provisions a new system and its owner account
type CreateSystemParams struct {
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Password       string            `json:"password"`
	ActivationCode string            `json:"activation_code,omitempty"`
	AccessKeys     []model.AccessKey `json:"access_keys,omitempty"`
	TimeConfig     *TimeConfig       `json:"time_config,omitempty"`
	DNSServers     []string          `json:"dns_servers,omitempty"`
	DNSName        string            `json:"dns_name,omitempty"`
}

type UpdateSystemParams struct {
	Name string `json:"name"`
}

// RoleParams grants or revokes role for the account with email
type RoleParams struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// MaintenanceParams starts a maintenance window of Duration minutes
type MaintenanceParams struct {
	Duration int `json:"duration"`
}

type MasterStateParams struct {
	IsMaster bool `json:"is_master"`
}

type BaseAddressParams struct {
	BaseAddress string `json:"base_address"`
}

type HostnameParams struct {
	Hostname string `json:"hostname"`
}

// PhoneHomeParams sets the proxy, a nil address removes it
type PhoneHomeParams struct {
	ProxyAddress *string `json:"proxy_address"`
}

// RemoteSyslogParams enables or disables remote syslog. Protocol, address
// and port are required when enabled.
type RemoteSyslogParams struct {
	Enabled  bool   `json:"enabled"`
	Protocol string `json:"protocol,omitempty"`
	Address  string `json:"address,omitempty"`
	Port     int    `json:"port,omitempty"`
}

type StatsReportParams struct {
	LastStatsReport int64 `json:"last_stats_report"`
}

type DiagnoseNodeParams struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type StackTraceParams struct {
	StackTrace json.RawMessage `json:"stack_trace"`
}

// ActivationParams is checked against the license server
type ActivationParams struct {
	Code  string `json:"code"`
	Email string `json:"email,omitempty"`
}

// --------------------------------------------------------------------------
// Replies
// --------------------------------------------------------------------------

type ActivationReply struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// SystemRef names a system in list_systems
type SystemRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SystemList struct {
	Systems []SystemRef `json:"systems"`
}

// AccountRef is the public identity of an account
type AccountRef struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type RoleInfo struct {
	Roles   []string   `json:"roles"`
	Account AccountRef `json:"account"`
}

type BucketInfo struct {
	Name       string           `json:"name"`
	Tiering    string           `json:"tiering"`
	NumObjects *big.Int         `json:"num_objects"`
	Size       *big.Int         `json:"size"`
	Storage    StorageInfo      `json:"storage"`
	DemoBucket bool             `json:"demo_bucket,omitempty"`
	CloudSync  *model.CloudSync `json:"cloud_sync,omitempty"`
}

type TierInfo struct {
	Name          string      `json:"name"`
	DataPlacement string      `json:"data_placement"`
	Pools         []string    `json:"pools"`
	Storage       StorageInfo `json:"storage"`
}

type MaintenanceMode struct {
	State bool  `json:"state"`
	Till  int64 `json:"till,omitempty"`
}

type PhoneHomeConfig struct {
	UpgradedCapNotification bool   `json:"upgraded_cap_notification"`
	ProxyAddress            string `json:"proxy_address,omitempty"`
	PhoneHomeUnableComm     bool   `json:"phone_home_unable_comm,omitempty"`
}

type UpgradeInfo struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ClusterMemberInfo struct {
	Address    string `json:"address"`
	DebugLevel int    `json:"debug_level"`
	IsMaster   bool   `json:"is_master"`
}

type ClusterInfo struct {
	Members []ClusterMemberInfo `json:"members"`
}

// SystemInfo is the aggregated status view of a system
type SystemInfo struct {
	Name               string                    `json:"name"`
	Objects            *big.Int                  `json:"objects"`
	Roles              []RoleInfo                `json:"roles"`
	Buckets            []BucketInfo              `json:"buckets"`
	Pools              []PoolInfo                `json:"pools"`
	Tiers              []TierInfo                `json:"tiers"`
	Storage            StorageInfo               `json:"storage"`
	Nodes              NodesInfo                 `json:"nodes"`
	Owner              AccountInfo               `json:"owner"`
	LastStatsReport    int64                     `json:"last_stats_report"`
	MaintenanceMode    MaintenanceMode           `json:"maintenance_mode"`
	SSLPort            int                       `json:"ssl_port,omitempty"`
	WebPort            int                       `json:"web_port,omitempty"`
	WebLinks           map[string]string         `json:"web_links"`
	N2NConfig          model.N2NConfig           `json:"n2n_config"`
	IPAddress          string                    `json:"ip_address"`
	DNSName            string                    `json:"dns_name,omitempty"`
	BaseAddress        string                    `json:"base_address"`
	RemoteSyslogConfig *model.RemoteSyslogConfig `json:"remote_syslog_config,omitempty"`
	PhoneHomeConfig    PhoneHomeConfig           `json:"phone_home_config"`
	Version            string                    `json:"version"`
	DebugLevel         int                       `json:"debug_level"`
	Upgrade            UpgradeInfo               `json:"upgrade"`
	SystemCap          int64                     `json:"system_cap"`
	Cluster            *ClusterInfo              `json:"cluster,omitempty"`
	Accounts           []AccountInfo             `json:"accounts"`
}

// --------------------------------------------------------------------------
// Activity log
// --------------------------------------------------------------------------

// EntityRef names the entity an activity event is about
type EntityRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Key  string `json:"key,omitempty"`
}

// ActivityEvent is one audit log entry. The prefix of Event before the
// first dot selects the entity field (pool, bucket, node, obj, ...).
type ActivityEvent struct {
	ID     string      `json:"id,omitempty"`
	Time   int64       `json:"time"`
	Level  string      `json:"level"`
	Event  string      `json:"event"`
	System string      `json:"system,omitempty"`
	Actor  *AccountRef `json:"actor,omitempty"`
	Desc   []string    `json:"desc"`
	Pool   *EntityRef  `json:"pool,omitempty"`
	Bucket *EntityRef  `json:"bucket,omitempty"`
	Node   *EntityRef  `json:"node,omitempty"`
	Obj    *EntityRef  `json:"obj,omitempty"`
}

// ActivityLogFilter selects events of the calling system
type ActivityLogFilter struct {
	Event string `json:"event,omitempty"`
	Since int64  `json:"since,omitempty"`
	Till  int64  `json:"till,omitempty"`
	Skip  int    `json:"skip,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type ActivityLogReply struct {
	Logs []ActivityEvent `json:"logs"`
}

// --------------------------------------------------------------------------
// Service
// --------------------------------------------------------------------------

// SystemService manages tenant systems. The calling system is taken from
// the session of the token.
type SystemService interface {
	CreateSystem(ctx context.Context, p *CreateSystemParams) (*TokenReply, error)
	ReadSystem(ctx context.Context, p *Empty) (*SystemInfo, error)
	UpdateSystem(ctx context.Context, p *UpdateSystemParams) (Empty, error)
	DeleteSystem(ctx context.Context, p *Empty) (Empty, error)
	ListSystems(ctx context.Context, p *Empty) (*SystemList, error)
	AddRole(ctx context.Context, p *RoleParams) (Empty, error)
	RemoveRole(ctx context.Context, p *RoleParams) (Empty, error)
	SetMaintenanceMode(ctx context.Context, p *MaintenanceParams) (Empty, error)
	SetWebserverMasterState(ctx context.Context, p *MasterStateParams) (Empty, error)
	UpdateN2NConfig(ctx context.Context, p *model.N2NConfig) (Empty, error)
	UpdateBaseAddress(ctx context.Context, p *BaseAddressParams) (Empty, error)
	UpdateHostname(ctx context.Context, p *HostnameParams) (Empty, error)
	UpdatePhoneHomeConfig(ctx context.Context, p *PhoneHomeParams) (Empty, error)
	PhoneHomeCapacityNotified(ctx context.Context, p *Empty) (Empty, error)
	ConfigureRemoteSyslog(ctx context.Context, p *RemoteSyslogParams) (Empty, error)
	SetLastStatsReportTime(ctx context.Context, p *StatsReportParams) (Empty, error)
	ReadActivityLog(ctx context.Context, p *ActivityLogFilter) (*ActivityLogReply, error)
	ExportActivityLog(ctx context.Context, p *ActivityLogFilter) (string, error)
	DiagnoseSystem(ctx context.Context, p *Empty) (string, error)
	DiagnoseNode(ctx context.Context, p *DiagnoseNodeParams) (string, error)
	LogFrontendStackTrace(ctx context.Context, p *StackTraceParams) (Empty, error)
	ValidateActivation(ctx context.Context, p *ActivationParams) (*ActivationReply, error)
}

// NewSystemServiceDesc binds impl to the system service
func NewSystemServiceDesc(impl SystemService) server.ServiceDesc {
	return server.ServiceDesc{
		Name: ServiceSystem,
		Methods: []server.MethodDesc{
			method(MethodCreateSystem, auth.None, impl.CreateSystem),
			method(MethodReadSystem, auth.System, impl.ReadSystem),
			method(MethodUpdateSystem, auth.SystemAdmin, impl.UpdateSystem),
			method(MethodDeleteSystem, auth.SystemAdmin, impl.DeleteSystem),
			method(MethodListSystems, auth.Any, impl.ListSystems),
			method(MethodAddRole, auth.SystemAdmin, impl.AddRole),
			method(MethodRemoveRole, auth.SystemAdmin, impl.RemoveRole),
			method(MethodSetMaintenanceMode, auth.SystemAdmin, impl.SetMaintenanceMode),
			method(MethodSetWebserverMasterState, auth.SystemAdmin, impl.SetWebserverMasterState),
			method(MethodUpdateN2NConfig, auth.SystemAdmin, impl.UpdateN2NConfig),
			method(MethodUpdateBaseAddress, auth.SystemAdmin, impl.UpdateBaseAddress),
			method(MethodUpdateHostname, auth.SystemAdmin, impl.UpdateHostname),
			method(MethodUpdatePhoneHomeConfig, auth.SystemAdmin, impl.UpdatePhoneHomeConfig),
			method(MethodPhoneHomeCapacityNotified, auth.SystemAdmin, impl.PhoneHomeCapacityNotified),
			method(MethodConfigureRemoteSyslog, auth.SystemAdmin, impl.ConfigureRemoteSyslog),
			method(MethodSetLastStatsReportTime, auth.SystemAdmin, impl.SetLastStatsReportTime),
			method(MethodReadActivityLog, auth.SystemAdmin, impl.ReadActivityLog),
			method(MethodExportActivityLog, auth.SystemAdmin, impl.ExportActivityLog),
			method(MethodDiagnoseSystem, auth.SystemAdmin, impl.DiagnoseSystem),
			method(MethodDiagnoseNode, auth.SystemAdmin, impl.DiagnoseNode),
			method(MethodLogFrontendStackTrace, auth.Any, impl.LogFrontendStackTrace),
			method(MethodValidateActivation, auth.None, impl.ValidateActivation),
		},
	}
}

// SystemClient is the typed client of the system service
type SystemClient struct {
	c *client.Client
}

// NewSystemClient wraps c
func NewSystemClient(c *client.Client) *SystemClient {
	return &SystemClient{c: c}
}

func (s *SystemClient) CreateSystem(ctx context.Context, params *CreateSystemParams, opts ...client.CallOption) (*TokenReply, error) {
	return call[*TokenReply](ctx, s.c, ServiceSystem, MethodCreateSystem, params, opts)
}

func (s *SystemClient) ReadSystem(ctx context.Context, opts ...client.CallOption) (*SystemInfo, error) {
	return call[*SystemInfo](ctx, s.c, ServiceSystem, MethodReadSystem, nil, opts)
}

func (s *SystemClient) UpdateSystem(ctx context.Context, name string, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodUpdateSystem, &UpdateSystemParams{Name: name}, opts)
	return err
}

func (s *SystemClient) DeleteSystem(ctx context.Context, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodDeleteSystem, nil, opts)
	return err
}

func (s *SystemClient) ListSystems(ctx context.Context, opts ...client.CallOption) (*SystemList, error) {
	return call[*SystemList](ctx, s.c, ServiceSystem, MethodListSystems, nil, opts)
}

func (s *SystemClient) AddRole(ctx context.Context, email, role string, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodAddRole, &RoleParams{Email: email, Role: role}, opts)
	return err
}

func (s *SystemClient) RemoveRole(ctx context.Context, email, role string, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodRemoveRole, &RoleParams{Email: email, Role: role}, opts)
	return err
}

func (s *SystemClient) SetMaintenanceMode(ctx context.Context, minutes int, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodSetMaintenanceMode, &MaintenanceParams{Duration: minutes}, opts)
	return err
}

func (s *SystemClient) SetWebserverMasterState(ctx context.Context, isMaster bool, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodSetWebserverMasterState, &MasterStateParams{IsMaster: isMaster}, opts)
	return err
}

func (s *SystemClient) UpdateN2NConfig(ctx context.Context, config *model.N2NConfig, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodUpdateN2NConfig, config, opts)
	return err
}

func (s *SystemClient) UpdateBaseAddress(ctx context.Context, address string, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodUpdateBaseAddress, &BaseAddressParams{BaseAddress: address}, opts)
	return err
}

func (s *SystemClient) UpdateHostname(ctx context.Context, hostname string, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodUpdateHostname, &HostnameParams{Hostname: hostname}, opts)
	return err
}

func (s *SystemClient) UpdatePhoneHomeConfig(ctx context.Context, proxy *string, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodUpdatePhoneHomeConfig, &PhoneHomeParams{ProxyAddress: proxy}, opts)
	return err
}

func (s *SystemClient) PhoneHomeCapacityNotified(ctx context.Context, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodPhoneHomeCapacityNotified, nil, opts)
	return err
}

func (s *SystemClient) ConfigureRemoteSyslog(ctx context.Context, params *RemoteSyslogParams, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodConfigureRemoteSyslog, params, opts)
	return err
}

func (s *SystemClient) SetLastStatsReportTime(ctx context.Context, at int64, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodSetLastStatsReportTime, &StatsReportParams{LastStatsReport: at}, opts)
	return err
}

func (s *SystemClient) ReadActivityLog(ctx context.Context, filter *ActivityLogFilter, opts ...client.CallOption) (*ActivityLogReply, error) {
	return call[*ActivityLogReply](ctx, s.c, ServiceSystem, MethodReadActivityLog, filter, opts)
}

func (s *SystemClient) ExportActivityLog(ctx context.Context, filter *ActivityLogFilter, opts ...client.CallOption) (string, error) {
	return call[string](ctx, s.c, ServiceSystem, MethodExportActivityLog, filter, opts)
}

func (s *SystemClient) DiagnoseSystem(ctx context.Context, opts ...client.CallOption) (string, error) {
	return call[string](ctx, s.c, ServiceSystem, MethodDiagnoseSystem, nil, opts)
}

func (s *SystemClient) DiagnoseNode(ctx context.Context, params *DiagnoseNodeParams, opts ...client.CallOption) (string, error) {
	return call[string](ctx, s.c, ServiceSystem, MethodDiagnoseNode, params, opts)
}

func (s *SystemClient) LogFrontendStackTrace(ctx context.Context, trace json.RawMessage, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceSystem, MethodLogFrontendStackTrace, &StackTraceParams{StackTrace: trace}, opts)
	return err
}

func (s *SystemClient) ValidateActivation(ctx context.Context, params *ActivationParams, opts ...client.CallOption) (*ActivationReply, error) {
	return call[*ActivationReply](ctx, s.c, ServiceSystem, MethodValidateActivation, params, opts)
}
