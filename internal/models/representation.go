package models

// Representation identifies which logical view of an image a model serves
type Representation int

const (
	RepresentationIMG Representation = iota
	RepresentationNORM
	RepresentationGRAD
	RepresentationIMGPCA
	RepresentationGRADPCA
)

func (r Representation) String() string {
	switch r {
	case RepresentationIMG:
		return "IMG"
	case RepresentationNORM:
		return "NORM"
	case RepresentationGRAD:
		return "GRAD"
	case RepresentationIMGPCA:
		return "IMGPCA"
	case RepresentationGRADPCA:
		return "GRADPCA"
	default:
		return "UNKNOWN"
	}
}

// Logarithmic reports whether values of this representation live in log space
func (r Representation) Logarithmic() bool {
	return r == RepresentationGRAD || r == RepresentationGRADPCA
}
