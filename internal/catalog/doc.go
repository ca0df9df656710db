// Package catalog describes where the pre-supplied atlas and label images
// live and how each segmentation type maps onto them. The catalog is an HCL
// document; a default matching the BIDS App container layout is embedded in
// the binary.
//
// A catalog is turned into a copy plan with Plan, which names every source
// image and the file name the pipeline expects for it under input/atlas.
package catalog
