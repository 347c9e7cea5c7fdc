// Command facescan is the command-line client for the facescan daemon. It
// runs the daemon in the foreground, sends scan and control commands to the
// requests socket, waits for completion notices, and inspects the catalog.
package main
