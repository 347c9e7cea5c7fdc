package config

const (
	defaultDataDir   = "~/.local/share/facescan"
	defaultLogDir    = "~/.local/share/facescan/logs"
	defaultSocketDir = "~/.local/share/facescan/run"
	defaultCatalogDB = "catalog.db"

	defaultWorkerSocket   = "facescan_worker.sock"
	defaultServerSocket   = "facescan_server.sock"
	defaultRequestsSocket = "facescan_requests.sock"
	defaultNotifySocket   = "facescan_notify.sock"

	defaultHandoffTimeoutMS      = 5000
	defaultQuiescenceIntervalMS  = 1000
	defaultQuiescenceMaxWaitSecs = 30
	defaultOptimizeDecode        = true
	defaultCatalogDebounceMS     = 2000
	defaultDetectMinSize         = 20
	defaultDetectMaxSize         = 1000
	defaultDetectShiftFactor     = 0.1
	defaultDetectScaleFactor     = 1.1
	defaultDetectIoUThreshold    = 0.2
	defaultDetectMinQuality      = 5.0
	defaultFaceUDPAddr           = "127.0.0.1:1551"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogMaxSizeMB          = 50
	defaultLogMaxBackups         = 5
	defaultLogMaxAgeDays         = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			SocketDir: defaultSocketDir,
			CatalogDB: defaultCatalogDB,
		},
		Sockets: Sockets{
			Worker:   defaultWorkerSocket,
			Server:   defaultServerSocket,
			Requests: defaultRequestsSocket,
			Notify:   defaultNotifySocket,
		},
		Scan: Scan{
			HandoffTimeoutMS:         defaultHandoffTimeoutMS,
			QuiescenceIntervalMS:     defaultQuiescenceIntervalMS,
			QuiescenceMaxWaitSeconds: defaultQuiescenceMaxWaitSecs,
			OptimizeDecode:           defaultOptimizeDecode,
			CatalogDebounceMS:        defaultCatalogDebounceMS,
		},
		Detect: Detect{
			MinSize:      defaultDetectMinSize,
			MaxSize:      defaultDetectMaxSize,
			ShiftFactor:  defaultDetectShiftFactor,
			ScaleFactor:  defaultDetectScaleFactor,
			IoUThreshold: defaultDetectIoUThreshold,
			MinQuality:   defaultDetectMinQuality,
		},
		Notify: Notify{
			Enabled:     false,
			FaceUDPAddr: defaultFaceUDPAddr,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
