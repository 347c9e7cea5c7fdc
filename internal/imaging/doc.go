// Package imaging decodes catalog images into packed pixel buffers for face
// detection.
//
// Decoding follows a fixed policy: the MIME type selects the pixel format
// (JPEG decodes to RGB, PNG and BMP to RGBA), large images are optionally
// downscaled to fit 1280x720, and the result is rotated clockwise by the
// catalog orientation. Probe reads only the header for dimensions.
package imaging
