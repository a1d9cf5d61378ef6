// Package audio handles decoding of uploaded audio into mono float waveforms
// and splitting waveforms into fixed-duration, silence-padded windows that are
// submitted independently to the inference engine.
package audio
