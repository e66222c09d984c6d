// Package dashboard is the terminal front end for the monitor.
//
// A bubbletea program renders the link state, the latest temperature and
// humidity readings, the classification for the active storage profile
// and sparkline charts of the history window. Keys select the profile,
// cycle the chart mode, restart the link and publish configured commands;
// every change goes through the monitor rather than the model.
package dashboard
