// Package process supervises the external radio agent.
//
// When radio.driver is "mqtt" the radio sticks are driven by a separate
// agent binary that speaks the pulse/radio/... topics. With
// radio.agent.managed set, the core starts that binary itself, restarts it
// with exponential backoff when it exits, and stops it on shutdown.
//
//	sup := process.NewSupervisor(process.ConfigFromAgent(cfg.Radio.Agent))
//	sup.SetLogger(log.Component("agent"))
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
