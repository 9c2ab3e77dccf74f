package internal

type Config struct {
	// Storage
	DataDir string `name:"data-dir" alias:"path" required:"true" help:"Directory for device log files"`
	MetaDir string `name:"meta-dir" help:"Directory for sync metadata files (default: data-dir)"`

	// Polling
	PollInterval string `name:"poll-interval" default:"30" help:"Seconds between sync cycles. Supports duration syntax (500ms, 1m)."`
	PollWorkers  int    `name:"poll-workers" default:"4" help:"Devices synced concurrently per cycle"`
	PollRate     int    `name:"poll-rate" default:"0" help:"Snapshot reads per second across the fleet (0 = unlimited)"`

	// Sync algorithm
	SyncStrategy string `name:"sync-strategy" default:"tail" help:"Duplicate detection strategy: tail (index+hash tail comparison) or window (stored tail window dedup)"`
	WrapGuard    int    `name:"wrap-guard" default:"256" help:"Highest tail index still trusted as pre-wraparound when it scrolls out of the snapshot"`
	WindowSize   int    `name:"window-size" default:"32" help:"Stored records read back for window-strategy dedup"`

	// Telemetry source
	Sim            bool     `help:"Use the simulated battery monitor fleet as the telemetry source"`
	SimSerials     []string `name:"sim-serials" default:"BAT-0001,BAT-0002,BAT-0003" help:"Serials of the simulated devices"`
	SimRingSize    int      `name:"sim-ring-size" default:"32" help:"Ring buffer capacity of each simulated device"`
	SimRecordsPoll int      `name:"sim-records-per-poll" default:"3" help:"New records each simulated device logs per poll"`

	// Server
	HTTPListen    string `name:"http-listen" default:":9260" help:"HTTP API TCP address or .sock path ('none' to disable)"`
	StreamListen  string `name:"stream-listen" default:"none" help:"WebSocket record stream address ('none' to disable)"`
	MetricsListen string `name:"metrics-listen" default:"none" help:"Metrics endpoint address ('none' to disable)"`

	// Streaming
	StreamMaxClients        int `name:"stream-max-clients" default:"100" help:"Maximum concurrent streaming clients"`
	StreamHeartbeatInterval int `name:"stream-heartbeat" default:"30" help:"Streaming heartbeat interval in seconds"`

	// One-shot modes
	NandCheck    bool   `name:"nand-check" help:"Run the flash driver self-test against the simulated chip, then exit"`
	Purge        bool   `help:"Delete every device log and metadata record, then exit"`
	ExportSerial string `name:"export" help:"Export one device's log to <serial>.blx, then exit"`
	ImportFile   string `name:"import" help:"Import an exported archive; requires --import-serial"`
	ImportSerial string `name:"import-serial" help:"Serial to import the archive into"`

	// Logging and debugging
	Debug     bool     `help:"Enable debug logging (all categories)"`
	LogFilter []string `name:"log-filter" default:"startup,poll,sync,nand,stream" help:"Log category filter (comma-separated)"`
	LogFile   string   `name:"log-file" help:"Log output file path (logs to both stdout and file when set)"`
	PprofPort string   `name:"pprof-port" help:"Port for pprof debugging endpoint"`
}
