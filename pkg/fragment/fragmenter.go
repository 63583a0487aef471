package fragment

// Split cuts an assembled message into radio frames for sequence.
// The first frame carries FlagFirst, the last FlagLast, and a message that
// fits in one frame carries both. Frames are zero-padded to frameSize.
//
// In LengthTrailingZero mode a message whose final fragment ends in zero
// bytes does not survive the round trip; Split does not guard against it.
func Split(version uint8, sequence uint32, msg []byte, mode LengthMode, frameSize int) ([][]byte, error) {
	if len(msg) == 0 {
		return nil, ErrEmptyMessage
	}
	if !mode.IsValid() {
		return nil, ErrInvalidLengthMode
	}
	if frameSize == 0 {
		frameSize = MaxFrameSize
	}
	if err := mode.CheckFrameSize(frameSize); err != nil {
		return nil, err
	}

	chunk := frameSize - mode.HeaderSize()
	frames := make([][]byte, 0, (len(msg)+chunk-1)/chunk)

	for start := 0; start < len(msg); start += chunk {
		end := min(start+chunk, len(msg))

		var flags uint8
		if start == 0 {
			flags |= FlagFirst
		}
		if end == len(msg) {
			flags |= FlagLast
		}

		f := &Fragment{
			Header: Header{
				Version:  version,
				Flags:    flags,
				Sequence: sequence,
			},
			Payload: msg[start:end],
		}
		frame, err := f.Encode(mode, frameSize)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	return frames, nil
}
