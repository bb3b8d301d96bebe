// Package audio implements the PCM processing core: accumulation of
// irregular capture chunks into fixed-size windows, stateless sample rate
// conversion, and encoding to the WAV container used for recording
// artifacts.
package audio
