// Package formats provides parsers for Ragnarok Online file formats.
//
// Only RSM models are parsed; maps, ground and sprite formats carry no data
// a shape needs.
package formats
