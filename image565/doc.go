// Package image565 provides a 16-bit RGB565 image format for the ILI9325 display controller.
//
// The ILI9325 runs in 16-bit mode: each pixel is one 16-bit word with 5 bits of
// red, 6 bits of green and 5 bits of blue. Pixels are stored one word per
// uint16 in row-major order, which is exactly the order in which the driver
// streams them to the controller.
//
// Word layout:
//
//	bit   15 .. 11 | 10 .. 5 | 4 .. 0
//	      red      | green   | blue
//
// This package provides:
//
// - RGB565: A color type holding one packed pixel word
// - RGB565Model: A color model for converting standard Go colors to RGB565
// - Image: An image.Image implementation backed by a []uint16
//
// Example usage:
//
//	// Create a 320x240 image
//	img := image565.New(image.Rect(0, 0, 320, 240))
//
//	// Set a pixel to pure red
//	img.SetRGB565(10, 20, image565.RGB565(0xF800))
//
//	// Use with standard Go image operations
//	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
package image565
