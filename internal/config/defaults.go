package config

const (
	defaultStateDir            = "~/.local/share/easel"
	defaultLogDir              = "~/.local/share/easel/logs"
	defaultPreviewPath         = ""
	defaultCanvasWidth         = 1024
	defaultCanvasHeight        = 1024
	defaultCanvasBackground    = "#00000000"
	defaultRenderIntervalMS    = 33
	defaultBrushColor          = "#ffffffff"
	defaultBrushWidth          = 50
	defaultEraserWidth         = 50
	defaultStagingMode         = "canvas"
	defaultServiceBaseURL      = "http://127.0.0.1:9090"
	defaultServiceQueueID      = "default"
	defaultRequestTimeout      = 30
	defaultResolveTimeout      = 60
	defaultGalleryBoard        = "none"
	defaultNotifyTimeout       = 10
	defaultNotifyDedupWindow   = 5
	defaultAPIBind             = "127.0.0.1:7488"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultGenerationSteps     = 50
	defaultGenerationCFGScale  = 7.5
	defaultGenerationScheduler = "euler"
	defaultImg2ImgStrength     = 0.75
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			PreviewPath: defaultPreviewPath,
		},
		Canvas: Canvas{
			Width:            defaultCanvasWidth,
			Height:           defaultCanvasHeight,
			Background:       defaultCanvasBackground,
			DimDisabled:      true,
			RenderIntervalMS: defaultRenderIntervalMS,
		},
		Tools: Tools{
			BrushColor:  defaultBrushColor,
			BrushWidth:  defaultBrushWidth,
			EraserWidth: defaultEraserWidth,
		},
		Staging: Staging{
			AutoAccept:  true,
			DefaultMode: defaultStagingMode,
		},
		Service: Service{
			BaseURL:        defaultServiceBaseURL,
			QueueID:        defaultServiceQueueID,
			RequestTimeout: defaultRequestTimeout,
			ResolveTimeout: defaultResolveTimeout,
		},
		Generation: Generation{
			Steps:           defaultGenerationSteps,
			CFGScale:        defaultGenerationCFGScale,
			Scheduler:       defaultGenerationScheduler,
			Img2ImgStrength: defaultImg2ImgStrength,
		},
		Gallery: Gallery{
			AutoSwitch:   true,
			DefaultBoard: defaultGalleryBoard,
		},
		Notifications: Notifications{
			SendToToasts:       true,
			RequestTimeout:     defaultNotifyTimeout,
			DedupWindowSeconds: defaultNotifyDedupWindow,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
