// Package studio is the query and control surface of Pulse Core.
//
// Service ties the live cache, the current-readings table, the lesson gate
// and the roster together behind the operations a front end needs: live
// device views, lesson start/end/status, results, users and device links.
//
// There is no HTTP binding; callers embed a Service and expose it however
// they like.
package studio
