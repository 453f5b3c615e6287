// Package device defines the vocabulary shared by the GATT session core and the
// hardware adapters that drive a real radio.
//
// It contains:
//   - Adapter, the asynchronous hardware boundary (connect, discover, read, write, notify)
//   - Peripheral, ServiceInfo and CharacteristicInfo descriptors handed across that boundary
//   - Properties, the characteristic capability bitset
//   - the error taxonomy returned by every session operation
//   - UUID normalization used for all lookups
package device
