package genicam

// SFNC feature names used by gigecam.
const (
	DeviceVendorName = "DeviceVendorName"
	DeviceModelName  = "DeviceModelName"
	DeviceVersion    = "DeviceVersion"
	DeviceID         = "DeviceID"
	DeviceUserID     = "DeviceUserID"
	DeviceScanType   = "DeviceScanType"

	GevVersionMajor     = "GevVersionMajor"
	GevVersionMinor     = "GevVersionMinor"
	GevSCPSPacketSize   = "GevSCPSPacketSize"
	GevMACAddress       = "GevMACAddress"
	GevCurrentIPAddress = "GevCurrentIPAddress"

	SensorWidth  = "SensorWidth"
	SensorHeight = "SensorHeight"
	Width        = "Width"
	Height       = "Height"
	OffsetX      = "OffsetX"
	OffsetY      = "OffsetY"
	ReverseX     = "ReverseX"
	ReverseY     = "ReverseY"
	PixelFormat  = "PixelFormat"

	AcquisitionMode       = "AcquisitionMode"
	AcquisitionStart      = "AcquisitionStart"
	AcquisitionStop       = "AcquisitionStop"
	AcquisitionFrameCount = "AcquisitionFrameCount"
	AcquisitionFrameRate  = "AcquisitionFrameRate"
	TriggerSelector       = "TriggerSelector"
	TriggerMode           = "TriggerMode"
	TriggerSource         = "TriggerSource"
	TriggerSoftware       = "TriggerSoftware"
	ExposureMode          = "ExposureMode"
	ExposureTime          = "ExposureTime"

	EventSelector = "EventSelector"

	LineSelector = "LineSelector"
	LineMode     = "LineMode"
	LineFormat   = "LineFormat"

	CounterSelector = "CounterSelector"
	CounterStatus   = "CounterStatus"
	TimerSelector   = "TimerSelector"
	TimerStatus     = "TimerStatus"

	LUTSelector = "LUTSelector"
	LUTIndex    = "LUTIndex"
	LUTValue    = "LUTValue"
)

// Enumeration entry names.
const (
	ModeContinuous  = "Continuous"
	ModeMultiFrame  = "MultiFrame"
	ModeSingleFrame = "SingleFrame"

	SelectorAcquisitionStart = "AcquisitionStart"
	SelectorFrameStart       = "FrameStart"

	TriggerOn  = "On"
	TriggerOff = "Off"

	SourceSoftware = "Software"
)
