// Package barcode provides a pluggable interface for barcode symbol
// decoding. The default backend combines two pure-Go ZXing ports: zxinggo
// reads PDF417 and gozxing reads the matrix and linear symbologies. The
// decoder cascade talks to them only through the Backend interface, so
// tests and alternative decoders can be swapped in.
package barcode
