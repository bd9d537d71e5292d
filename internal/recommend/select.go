package recommend

import "github.com/justestif/go-moodtunes/internal/music"

// pick chooses up to pickSize tracks, preferring ones with previews. With
// enough previewable tracks the pick is a random sample of those. Otherwise
// every previewable track is kept and the rest is filled at random from the
// tracks without previews.
func (f *Fetcher) pick(tracks []music.Track) []music.Track {
	var with, without []music.Track
	for _, t := range tracks {
		if t.HasPreview() {
			with = append(with, t)
		} else {
			without = append(without, t)
		}
	}

	if len(with) >= f.pickSize {
		f.shuffle(with)
		return with[:f.pickSize]
	}

	f.shuffle(without)
	fill := min(f.pickSize-len(with), len(without))

	out := make([]music.Track, 0, len(with)+fill)
	out = append(out, with...)
	out = append(out, without[:fill]...)
	f.shuffle(out)
	return out
}

func (f *Fetcher) shuffle(tracks []music.Track) {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	f.rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}
