// Package device defines the platform-neutral BLE vocabulary shared by the scanner, the
// connection session and the platform bindings.
//
// It holds:
//   - peer descriptors and the connection state enum
//   - the discovered GATT tree (services, characteristics, descriptors)
//   - the capability interfaces a native binding implements (ScanBackend, Central, Link)
//   - the tagged raw events those bindings emit
//   - structured errors shared across the stack
package device
