// Package nats carries a camera's acquisition events over NATS and lets
// other processes fire software triggers remotely.
//
// # Architecture
//
//   - Server: optional embedded NATS server (--nats-embed)
//   - CameraClient: runs next to the camera; forwards bus events and
//     answers trigger requests
//   - ControlPublisher: sends trigger requests (gigecam trigger)
//   - Bridge: feeds remote camera events into a local bus (gigecam monitor)
//
// # Subject Hierarchy
//
//	gigecam.cameras.{camera}.frames     # FrameMessage per processed frame
//	gigecam.cameras.{camera}.triggers   # TriggerMessage per software trigger
//	gigecam.cameras.{camera}.state      # StateMessage on start/restart/stop
//	gigecam.control.{camera}.trigger    # ControlMessage request, ControlReply answer
//
// Core NATS only; no JetStream. Trigger requests are rejected unless the
// camera is in a software-triggered run.
//
// # Debugging with nats CLI
//
//	nats sub "gigecam.cameras.>"
//	nats req "gigecam.control.sim.trigger" '{"action":"trigger","camera":"sim","reason":"debug"}'
package nats
